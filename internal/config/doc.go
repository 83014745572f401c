// Package config loads the virtual directory definition: connectors,
// physical sources, entry mappings and engine tuning.
//
// # Loading Configuration
//
// Load configuration from a YAML file:
//
//	cfg, err := config.LoadConfig("/etc/vdx/directory.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
//	    log.Fatal(errs)
//	}
//	reg, err := config.ToRegistry(cfg)
//
// Open goes one step further and starts an engine with the declared
// connectors, caches and change broker. FileProvider and EtcdProvider
// serve the registry through mapping.Provider; Watcher polls the file
// and hands each valid change to the engine through ReloadOnChange.
//
// # Environment Variables
//
// ${VAR} and ${VAR:-default} are substituted before parsing:
//
//	password: "${VDX_LDAP_PASSWORD}"
//	dsn: "${VDX_DSN:-file:/var/lib/vdx/hr.db}"
//
// # Example Configuration
//
//	logging:
//	  level: info
//	  format: json
//
//	engine:
//	  workers: 8
//	  batchSize: 100
//	  lockTimeout: 5s
//
//	cache:
//	  type: memory
//	  size: 1000
//	  ttl: 5m
//
//	connectors:
//	  - name: hr
//	    type: sqlite
//	    dsn: "file:hr.db"
//
//	sources:
//	  - name: users
//	    connector: hr
//	    fields:
//	      - {name: id, primaryKey: true}
//	      - {name: name}
//	  - name: emails
//	    connector: hr
//	    fields:
//	      - {name: user_id, primaryKey: true}
//	      - {name: email, primaryKey: true}
//
//	entries:
//	  - id: users-ou
//	    parentDN: "dc=example,dc=com"
//	    objectClasses: [organizationalUnit]
//	    attributes:
//	      - {name: ou, rdn: true, constant: users}
//	  - id: user
//	    parent: users-ou
//	    objectClasses: [person]
//	    attributes:
//	      - {name: id, rdn: true, variable: users.id}
//	      - {name: cn, script: 'users.name + " #" + users.id'}
//	      - {name: email, variable: emails.email}
//	    sources:
//	      - source: users
//	        fields:
//	          - {name: id, variable: id}
//	          - {name: name, variable: name}
//	      - source: emails
//	        required: false
//	        fields:
//	          - {name: email, variable: email}
//	    relationships:
//	      - users.id = emails.user_id
package config
