// Package policy runs Open Policy Agent checks over an expanded identity
// catalog before anything is converged.
//
// Every policy is a Rego module defining a "deny" set. The input document is
// the whole catalog:
//
//	{
//	  "resources": [
//	    {"id": "user[nova]", "kind": "user", "title": "nova",
//	     "ensure": "present", "attributes": {...}, "source": "identity.yaml"}
//	  ],
//	  "context": {"environment": "production", "dry_run": false}
//	}
//
// Each element of deny is either a message string or an object with
// "message", "resource" and optionally "severity". Violations of severity
// error or critical make the result not Allowed; the reconciler refuses to
// run unless policy checks are skipped. Warnings are logged and journaled.
//
// # Built-in policies
//
//   - endpoint-url-scheme (error): endpoint URLs must be http(s).
//   - endpoint-region (error): the region in an endpoint title must match
//     its region attribute.
//   - system-admin-grant (warning): admin granted on the system scope.
//   - user-email-format (warning): user email without an @.
//   - absent-shared-object (warning): a domain or role declared absent.
//
// # Custom policies
//
// Policy files are loaded from the paths in settings:
//
//	# name: endpoint-tls
//	# severity: error
//	# Public endpoints must use https.
//	package froyo.custom.endpoint_tls
//
//	import rego.v1
//
//	deny contains violation if {
//		some r in input.resources
//		r.kind == "endpoint"
//		startswith(r.attributes.public_url, "http://")
//		violation := {"message": "public endpoint is not https", "resource": r.id}
//	}
//
// JSON files holding a single Policy or a PolicyBundle are accepted too.
// Engine.Watch reloads the files when they change.
package policy
