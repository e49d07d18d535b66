package inventory

import (
	"fmt"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// KeyFunc returns the identity key of a declared resource. ok is false for
// resources that have no name-based identity.
type KeyFunc func(res *engine.Resource) (key engine.IdentityKey, ok bool, err error)

// DetectDuplicates fails when two declared resources with different titles
// manage the same remote object. It makes no remote calls. An empty domain
// compares equal to the default domain; names compare case-sensitively.
func DetectDuplicates(resources []*engine.Resource, keyOf KeyFunc) error {
	seen := make(map[engine.IdentityKey]*engine.Resource, len(resources))

	for _, res := range resources {
		key, ok, err := keyOf(res)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if key.Domain == "" && IsDomainScoped(key.Kind) {
			key.Domain = openstack.DefaultDomain
		}

		if prev, exists := seen[key]; exists && prev.Title != res.Title {
			return engine.NewDuplicateResourceError(
				fmt.Sprintf("%s and %s both manage %s", prev.ID(), res.ID(), key), nil).
				WithResource(res.ID())
		}
		seen[key] = res
	}
	return nil
}
