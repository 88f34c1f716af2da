package redis

const (
	// saveLimitScript atomically upserts one limit type of an app record,
	// preserving the other type, the record id and created_at.
	// Returns the full record as a flat field/value array.
	saveLimitScript = `
local limit_key = KEYS[1]     -- focuspact:limit:{owner}:{appID}
local index_key = KEYS[2]     -- focuspact:limits:{owner}

local id = ARGV[1]
local owner = ARGV[2]
local app_id = ARGV[3]
local app_name = ARGV[4]
local is_public = ARGV[5]     -- '' keeps the stored flag
local limit_type = ARGV[6]
local value = ARGV[7]         -- '' clears the limit type
local now = ARGV[8]

if redis.call('EXISTS', limit_key) == 0 then
  redis.call('HSET', limit_key,
    'id', id,
    'user_id', owner,
    'package_name', app_id,
    'app_name', app_id,
    'time_limit_value', '',
    'session_limit_value', '',
    'time_limit_enabled', '0',
    'session_limit_enabled', '0',
    'is_public', '0',
    'created_at', now
  )
end

if app_name ~= '' then
  redis.call('HSET', limit_key, 'app_name', app_name)
end

local enabled = '0'
if value ~= '' then
  enabled = '1'
end

if limit_type == 'time' then
  redis.call('HSET', limit_key, 'time_limit_value', value, 'time_limit_enabled', enabled)
elseif limit_type == 'sessions' then
  redis.call('HSET', limit_key, 'session_limit_value', value, 'session_limit_enabled', enabled)
else
  return redis.error_reply('invalid limit type: ' .. limit_type)
end

if is_public ~= '' then
  redis.call('HSET', limit_key, 'is_public', is_public)
end

redis.call('HSET', limit_key, 'updated_at', now)
redis.call('SADD', index_key, app_id)

return redis.call('HGETALL', limit_key)
`

	// deleteLimitScript removes an app record and its index entry.
	deleteLimitScript = `
local limit_key = KEYS[1]     -- focuspact:limit:{owner}:{appID}
local index_key = KEYS[2]     -- focuspact:limits:{owner}
local app_id = ARGV[1]

redis.call('DEL', limit_key)
redis.call('SREM', index_key, app_id)

return 'OK'
`
)
