package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestSaveLimitScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()
	keys := []string{limitKey("owner", "app"), limitIndexKey("owner")}

	tests := []struct {
		name         string
		id           string
		appName      string
		limitType    string
		value        string
		wantID       string
		wantAppName  string
		wantTime     string
		wantTimeOn   string
		wantSession  string
		wantSesionOn string
	}{
		{
			name:         "create with time limit",
			id:           "id-1",
			limitType:    "time",
			value:        "45",
			wantID:       "id-1",
			wantAppName:  "app",
			wantTime:     "45",
			wantTimeOn:   "1",
			wantSession:  "",
			wantSesionOn: "0",
		},
		{
			name:         "add session limit keeps id",
			id:           "id-2",
			appName:      "Example App",
			limitType:    "sessions",
			value:        "3",
			wantID:       "id-1",
			wantAppName:  "Example App",
			wantTime:     "45",
			wantTimeOn:   "1",
			wantSession:  "3",
			wantSesionOn: "1",
		},
		{
			name:         "clear time limit",
			id:           "id-3",
			limitType:    "time",
			value:        "",
			wantID:       "id-1",
			wantAppName:  "Example App",
			wantTime:     "",
			wantTimeOn:   "0",
			wantSession:  "3",
			wantSesionOn: "1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := client.Eval(ctx, saveLimitScript, keys,
				tt.id, "owner", "app", tt.appName, "0", tt.limitType, tt.value, "2026-01-01T00:00:00Z",
			).StringSlice()
			if err != nil {
				t.Fatalf("Script execution failed: %v", err)
			}

			data := flatToMap(values)
			if data["id"] != tt.wantID {
				t.Errorf("id = %q, want %q", data["id"], tt.wantID)
			}
			if data["app_name"] != tt.wantAppName {
				t.Errorf("app_name = %q, want %q", data["app_name"], tt.wantAppName)
			}
			if data["time_limit_value"] != tt.wantTime || data["time_limit_enabled"] != tt.wantTimeOn {
				t.Errorf("time = %q/%q, want %q/%q", data["time_limit_value"], data["time_limit_enabled"], tt.wantTime, tt.wantTimeOn)
			}
			if data["session_limit_value"] != tt.wantSession || data["session_limit_enabled"] != tt.wantSesionOn {
				t.Errorf("session = %q/%q, want %q/%q", data["session_limit_value"], data["session_limit_enabled"], tt.wantSession, tt.wantSesionOn)
			}

			isMember, err := client.SIsMember(ctx, limitIndexKey("owner"), "app").Result()
			if err != nil {
				t.Fatalf("SIsMember failed: %v", err)
			}
			if !isMember {
				t.Error("Expected app in owner index")
			}
		})
	}
}

func TestSaveLimitScript_InvalidType(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()
	keys := []string{limitKey("owner", "app"), limitIndexKey("owner")}

	err := client.Eval(ctx, saveLimitScript, keys,
		"id", "owner", "app", "", "0", "minutes", "10", "2026-01-01T00:00:00Z",
	).Err()
	if err == nil {
		t.Error("Expected error for invalid limit type")
	}
}

func TestDeleteLimitScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()
	keys := []string{limitKey("owner", "app"), limitIndexKey("owner")}

	if err := client.HSet(ctx, keys[0], "id", "x").Err(); err != nil {
		t.Fatalf("HSet failed: %v", err)
	}
	if err := client.SAdd(ctx, keys[1], "app").Err(); err != nil {
		t.Fatalf("SAdd failed: %v", err)
	}

	if err := client.Eval(ctx, deleteLimitScript, keys, "app").Err(); err != nil {
		t.Fatalf("Script execution failed: %v", err)
	}

	if mr.Exists(keys[0]) {
		t.Error("Expected limit hash to be deleted")
	}
	isMember, _ := client.SIsMember(ctx, keys[1], "app").Result()
	if isMember {
		t.Error("Expected app removed from index")
	}
}
