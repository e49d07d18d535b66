// Package config loads the settings file and the reconciliation manifests
// of froyo-keystone.
//
// # Overview
//
// Settings are a YAML file describing credentials, the client binary, the
// transport, scheduler tuning, the journal and telemetry. Missing fields keep
// their defaults.
//
// Manifests declare the desired identity objects. A manifest may be YAML,
// JSON or CUE; every format is decoded into the same generic document and
// checked against one embedded JSON Schema before being decoded into a
// Manifest.
//
// # Manifest layout
//
//	resources:
//	  - kind: domain
//	    title: services_domain
//	  - kind: user
//	    title: glance::services_domain
//	    attributes:
//	      email: glance@localhost
//	    require: ["domain[services_domain]"]
//
//	service_identities:
//	  - name: nova
//	    password: secret
//	    service_type: compute
//	    public_url: http://10.0.0.1:8774/v2.1
//	    internal_url: http://10.0.0.1:8774/v2.1
//	    admin_url: http://10.0.0.1:8774/v2.1
//
// CUE manifests use the same top-level fields. Definitions and hidden fields
// are not part of the document, so they can hold shared templates:
//
//	#service: {
//	    name:         string
//	    service_type: string
//	    region:       *"RegionOne" | string
//	}
//	service_identities: [
//	    #service & {name: "glance", service_type: "image"},
//	]
//
// # Error Handling
//
// Problems are reported as a ConfigError wrapping ValidationErrors, one entry
// per problem with its file, position when known, and document path.
package config
