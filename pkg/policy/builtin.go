package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		endpointURLSchemePolicy(),
		endpointRegionPolicy(),
		systemAdminGrantPolicy(),
		userEmailFormatPolicy(),
		absentSharedObjectPolicy(),
	}
}

// endpointURLSchemePolicy rejects endpoint URLs that are not http(s).
func endpointURLSchemePolicy() Policy {
	return Policy{
		Name:        "endpoint-url-scheme",
		Description: "Endpoint URLs must use the http or https scheme",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"endpoint", "catalog"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package froyo.keystone.endpoint_url

import rego.v1

url_attributes := ["public_url", "internal_url", "admin_url"]

deny contains violation if {
	some r in input.resources
	r.kind == "endpoint"
	r.ensure == "present"
	some attr in url_attributes
	url := r.attributes[attr]
	url != ""
	not regex.match("^https?://[^/]+", url)
	violation := {
		"message": sprintf("%s %q is not an http(s) URL", [attr, url]),
		"severity": "error",
		"resource": r.id,
	}
}`,
	}
}

// endpointRegionPolicy checks the region prefix of an endpoint title against
// its region attribute.
func endpointRegionPolicy() Policy {
	return Policy{
		Name:        "endpoint-region",
		Description: "The region in an endpoint title must match its region attribute",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"endpoint", "catalog"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package froyo.keystone.endpoint_region

import rego.v1

deny contains violation if {
	some r in input.resources
	r.kind == "endpoint"
	region := r.attributes.region
	contains(r.title, "/")
	prefix := split(r.title, "/")[0]
	prefix != region
	violation := {
		"message": sprintf("title region %q does not match region attribute %q", [prefix, region]),
		"severity": "error",
		"resource": r.id,
	}
}`,
	}
}

// systemAdminGrantPolicy flags system-scoped grants of the admin role.
func systemAdminGrantPolicy() Policy {
	return Policy{
		Name:        "system-admin-grant",
		Description: "Granting admin on the system scope gives cloud-wide administrative rights",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"grant", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package froyo.keystone.system_admin

import rego.v1

deny contains violation if {
	some r in input.resources
	r.kind == "user_role"
	r.ensure == "present"
	contains(r.title, "@::::")
	some role in r.attributes.roles
	role == "admin"
	violation := {
		"message": "system-scoped admin grant",
		"severity": "warning",
		"resource": r.id,
	}
}`,
	}
}

// userEmailFormatPolicy flags user emails without an @.
func userEmailFormatPolicy() Policy {
	return Policy{
		Name:        "user-email-format",
		Description: "User email addresses should contain an @",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"user"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package froyo.keystone.user_email

import rego.v1

deny contains violation if {
	some r in input.resources
	r.kind == "user"
	email := r.attributes.email
	is_string(email)
	not contains(email, "@")
	violation := {
		"message": sprintf("email %q is not an address", [email]),
		"severity": "warning",
		"resource": r.id,
	}
}`,
	}
}

// absentSharedObjectPolicy flags removal of objects other services may use.
func absentSharedObjectPolicy() Policy {
	return Policy{
		Name:        "absent-shared-object",
		Description: "Domains and roles are shared; removing them affects every grant and user inside",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"lifecycle"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package froyo.keystone.absent_shared

import rego.v1

shared_kinds := {"domain", "role"}

deny contains violation if {
	some r in input.resources
	r.kind in shared_kinds
	r.ensure == "absent"
	violation := {
		"message": sprintf("%s %q is declared absent", [r.kind, r.title]),
		"severity": "warning",
		"resource": r.id,
	}
}`,
	}
}
