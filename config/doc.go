// Package config loads, validates and hot-reloads the relay configuration.
//
// # Document
//
// The configuration is a single JSON or YAML document chosen by file extension.
// JSON may contain comments and trailing commas. JSON keys match case-insensitively,
// so both of these load:
//
//	{"ApiUrl": "/api/data", "BaseUrl": "http://10.0.0.5:5000",
//	 "Sensors": [{"Name": "Sensor1", "IPAddress": "10.0.0.50", "Port": 4001}]}
//
//	{"baseUrl": "http://10.0.0.5:5000", "apiUrl": "/api/data",
//	 "sensors": [{"name": "Sensor1", "ipAddress": "10.0.0.50", "port": 4001}],
//	 "session": {"connectTimeout": "20s", "retryInterval": "20s", "lineThrottle": "50ms"}}
//
// Durations are strings such as "1m30s"; bare numbers are seconds.
//
// # Loading
//
// Loader applies defaults, then the document, then environment overrides
// (SENSORRELAY_BASE_URL, SENSORRELAY_API_URL, SENSORRELAY_NATS_URL,
// SENSORRELAY_NATS_SUBJECT), and finally validates the result against a JSON schema
// followed by semantic checks:
//
//	cfg, err := config.NewLoader().LoadFile("appconfig.json")
//
// An unreadable file is a fatal error; a malformed or invalid document is an invalid
// error (see the errors package).
//
// # Hot reload
//
// Manager keeps the live document behind an atomic pointer. Start polls the file's
// modification time every reloadInterval; Reload forces a re-read (the process wires
// it to SIGHUP). A rejected document is logged and the previous one stays active.
// Sink settings apply to the next forward; the sensor list is fixed for the process
// lifetime and changes to it are logged as requiring a restart. forward.tls is read
// once when the sink client is built.
//
// # Security
//
//   - File size limit (10MB) and regular file check
//   - JSON depth limit (100 levels)
//   - Environment override length and null byte checks
package config
