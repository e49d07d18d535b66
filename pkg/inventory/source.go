package inventory

import (
	"context"
	"fmt"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// Source fetches remote instances.
type Source interface {
	// List returns every instance of a kind.
	List(ctx context.Context, kind engine.Kind) ([]*engine.RemoteInstance, error)

	// Show fetches one instance by name within a domain. A missing object
	// is a NotFoundError.
	Show(ctx context.Context, kind engine.Kind, name, domainID string) (*engine.RemoteInstance, error)
}

// CLISource reads instances through the openstack client.
type CLISource struct {
	client *openstack.Client
}

// NewCLISource creates a source over client.
func NewCLISource(client *openstack.Client) *CLISource {
	return &CLISource{client: client}
}

// listArgs holds the extra list arguments per kind. Kinds needing owner or
// service columns ask for the long listing.
var listArgs = map[engine.Kind]func() *openstack.Args{
	engine.KindDomain:   func() *openstack.Args { return openstack.NewArgs().Flag("quiet") },
	engine.KindProject:  func() *openstack.Args { return openstack.NewArgs().Flag("quiet").Flag("long") },
	engine.KindRole:     func() *openstack.Args { return openstack.NewArgs().Flag("quiet") },
	engine.KindUser:     func() *openstack.Args { return openstack.NewArgs().Flag("quiet").Flag("long") },
	engine.KindService:  func() *openstack.Args { return openstack.NewArgs().Flag("quiet").Flag("long") },
	engine.KindEndpoint: func() *openstack.Args { return openstack.NewArgs().Flag("quiet") },
}

// List implements Source.
func (s *CLISource) List(ctx context.Context, kind engine.Kind) ([]*engine.RemoteInstance, error) {
	build, ok := listArgs[kind]
	if !ok {
		return nil, engine.NewConfigError(fmt.Sprintf("kind %s cannot be listed", kind), nil).
			WithCode(engine.ErrCodeInvalidParameter)
	}

	out, err := s.client.Run(ctx, string(kind), "list", openstack.FormatCSV, build())
	if err != nil {
		return nil, err
	}
	rows, err := out.Rows()
	if err != nil {
		return nil, err
	}

	instances := make([]*engine.RemoteInstance, 0, len(rows))
	for _, row := range rows {
		instances = append(instances, InstanceFromFields(row))
	}
	return instances, nil
}

// Show implements Source.
func (s *CLISource) Show(ctx context.Context, kind engine.Kind, name, domainID string) (*engine.RemoteInstance, error) {
	args := openstack.NewArgs().Add(name)
	if domainID != "" {
		args.Opt("domain", domainID)
	}
	out, err := s.client.Run(ctx, string(kind), "show", openstack.FormatShell, args)
	if err != nil {
		return nil, err
	}
	fields, err := out.Shell()
	if err != nil {
		return nil, err
	}
	return InstanceFromFields(fields), nil
}

// InstanceFromFields builds a RemoteInstance from parsed client output.
func InstanceFromFields(fields map[string]string) *engine.RemoteInstance {
	inst := &engine.RemoteInstance{
		ID:          fields["id"],
		Name:        fields["name"],
		DomainID:    fields["domain_id"],
		Enabled:     openstack.ParseBool(fields["enabled"]),
		Email:       fields["email"],
		Description: fields["description"],
		Fields:      fields,
	}
	return inst
}
