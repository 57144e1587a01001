/*
Package config loads the console configuration from YAML.

Load starts from Default and unmarshals the file over it, so a file only
needs the values it changes. Command-line flags are applied on top by
cmd/conduit. Validate reports the first bad value wrapped in ErrInvalid.

	admin:
	  url: http://127.0.0.1:9180     # control-plane admin API
	  api_key: ""                    # sent as X-API-KEY
	  timeout: 10s                   # per request
	  rate_limit: 20                 # requests per second, 0 disables
	  burst: 4
	  key_prefix: /apisix            # used to derive ids from wrapped keys
	cache:
	  backend: bolt                  # bolt, redis or memory
	  data_dir: ~/.conduit
	  redis_addr: localhost:6379
	  redis_password: ""
	  redis_db: 0
	server:
	  listen: 127.0.0.1:9990
	  read_only: false               # reject PUT and DELETE
	refresh:
	  interval: 0s                   # periodic refresh, 0 disables
	  chains: false                  # compute access chains every cycle
	probe:
	  interval: 30s                  # admin and redis reachability, 0 disables
	  timeout: 5s
	  retries: 3                     # failures before a probe turns unhealthy
	log:
	  level: info
	  json: false
*/
package config
