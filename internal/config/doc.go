// Package config loads mohallaa.yaml.
//
// Every key has a default and can be overridden from the environment with
// the MOHALLAA_ prefix, dots replaced by underscores:
//
//	MOHALLAA_SERVER_ADDR=:9000
//	MOHALLAA_AUTH_SECRET=...
//	MOHALLAA_OPTIMISTIC_POLICY=supersede
//
// # Configuration File Structure
//
//	server:
//	  addr: localhost:8080
//	store:
//	  path: mohallaa.db
//	auth:
//	  issuer: mohallaa
//	  token_ttl: 24h
//	log:
//	  level: info
//	  format: text
//	upload:
//	  backend: disk
//	  dir: uploads
//	  max_file_size: 10485760
//	optimistic:
//	  timeout: 30s
//	  policy: drop
//	search:
//	  debounce: 300ms
//	  limit: 5
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
