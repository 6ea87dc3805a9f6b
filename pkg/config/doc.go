// Package config loads and validates the apimock configuration file.
//
// Configuration is layered: built-in defaults, then the YAML file, then
// APIMOCK_* environment variables (a .env file next to the config is read
// first when present), then command-line flags applied by the caller.
//
//	cfg, err := config.Load("apimock.yaml")
//	if err != nil {
//	    return err
//	}
//	if res := config.Validate(cfg); !res.IsValid() {
//	    return res
//	}
//
// A minimal file:
//
//	server:
//	  port: 8080
//	definitions:
//	  files: ["defs/**/*.yaml"]
//	rules:
//	  - name: users
//	    pathPattern: /mock/users/*
//	    mode: AUTO
//	    targetUrl: https://api.example.com
package config
