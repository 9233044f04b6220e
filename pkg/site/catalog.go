package site

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/recon"
)

// Resource addresses for a site environment. Addresses are stable across
// runs; the prefix before the first dot is the resource kind.
const (
	AddrZone       = "dns_zone.main"
	AddrCert       = "certificate.site"
	AddrStorage    = "storage.site"
	AddrCDN        = "cdn.site"
	AddrDNSApex    = "dns.apex"
	AddrDNSWWW     = "dns.www"
	AddrDeployUser = "iam.deploy_user"
	AddrMonitor    = "monitor.health"
)

// ZoneDescriptor is the desired state of the hosted DNS zone.
type ZoneDescriptor struct {
	Domain string            `json:"domain"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// CertDescriptor is the desired state of the site TLS certificate.
type CertDescriptor struct {
	Domain           string            `json:"domain"`
	AlternateNames   []string          `json:"alternate_names,omitempty"`
	ValidationMethod string            `json:"validation_method"`
	Tags             map[string]string `json:"tags,omitempty"`
}

// StorageDescriptor is the desired state of the origin content bucket.
type StorageDescriptor struct {
	Bucket        string            `json:"bucket"`
	Region        string            `json:"region"`
	IndexDocument string            `json:"index_document"`
	ErrorDocument string            `json:"error_document"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// CDNDescriptor is the desired state of the CDN distribution.
type CDNDescriptor struct {
	OriginBucket   string            `json:"origin_bucket"`
	Aliases        []string          `json:"aliases"`
	CertificateRef string            `json:"certificate_ref"`
	DefaultTTL     int               `json:"default_ttl_seconds"`
	Compress       bool              `json:"compress"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// RecordDescriptor is the desired state of one DNS record aliased to the
// CDN distribution.
type RecordDescriptor struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Target string `json:"target"`
}

// DeployUserDescriptor is the desired state of the scoped deploy identity.
type DeployUserDescriptor struct {
	UserName    string            `json:"user_name"`
	BucketScope string            `json:"bucket_scope"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// MonitorDescriptor is the desired state of the uptime health check.
type MonitorDescriptor struct {
	URL             string            `json:"url"`
	IntervalSeconds int               `json:"interval_seconds"`
	Tags            map[string]string `json:"tags,omitempty"`
}

// Declared expands an environment config into the full set of declared
// resources for that environment, in no particular order (the planner
// orders by dependency). Descriptors are canonical JSON so their hashes
// are stable between runs.
func Declared(cfg environ.EnvironmentConfig) ([]recon.DeclaredResource, error) {
	wwwDomain := "www." + cfg.Domain

	declared := make([]recon.DeclaredResource, 0, 8)

	zone, err := descriptor(ZoneDescriptor{
		Domain: cfg.Domain,
		Tags:   cfg.Tags,
	})
	if err != nil {
		return nil, err
	}
	declared = append(declared, recon.DeclaredResource{
		Address:    AddrZone,
		Kind:       recon.KindOf(AddrZone),
		Identity:   cfg.Domain,
		Descriptor: zone,
		Protected:  true,
	})

	cert, err := descriptor(CertDescriptor{
		Domain:           cfg.Domain,
		AlternateNames:   []string{wwwDomain},
		ValidationMethod: "dns",
		Tags:             cfg.Tags,
	})
	if err != nil {
		return nil, err
	}
	declared = append(declared, recon.DeclaredResource{
		Address:    AddrCert,
		Kind:       recon.KindOf(AddrCert),
		Identity:   cfg.Domain,
		Descriptor: cert,
		Protected:  true,
		DependsOn:  []string{AddrZone},
	})

	storage, err := descriptor(StorageDescriptor{
		Bucket:        cfg.StorageBucketName,
		Region:        cfg.Region,
		IndexDocument: "index.html",
		ErrorDocument: "404.html",
		Tags:          cfg.Tags,
	})
	if err != nil {
		return nil, err
	}
	declared = append(declared, recon.DeclaredResource{
		Address:    AddrStorage,
		Kind:       recon.KindOf(AddrStorage),
		Identity:   cfg.StorageBucketName,
		Descriptor: storage,
	})

	cdn, err := descriptor(CDNDescriptor{
		OriginBucket:   cfg.StorageBucketName,
		Aliases:        []string{cfg.Domain, wwwDomain},
		CertificateRef: AddrCert,
		DefaultTTL:     300,
		Compress:       true,
		Tags:           cfg.Tags,
	})
	if err != nil {
		return nil, err
	}
	declared = append(declared, recon.DeclaredResource{
		Address:    AddrCDN,
		Kind:       recon.KindOf(AddrCDN),
		Identity:   cfg.Domain,
		Descriptor: cdn,
		DependsOn:  []string{AddrCert, AddrStorage},
	})

	apex, err := descriptor(RecordDescriptor{
		Name:   cfg.Domain,
		Type:   "ALIAS",
		Target: AddrCDN,
	})
	if err != nil {
		return nil, err
	}
	declared = append(declared, recon.DeclaredResource{
		Address:    AddrDNSApex,
		Kind:       recon.KindOf(AddrDNSApex),
		Identity:   cfg.Domain,
		Descriptor: apex,
		DependsOn:  []string{AddrCDN},
	})

	www, err := descriptor(RecordDescriptor{
		Name:   wwwDomain,
		Type:   "CNAME",
		Target: AddrCDN,
	})
	if err != nil {
		return nil, err
	}
	declared = append(declared, recon.DeclaredResource{
		Address:    AddrDNSWWW,
		Kind:       recon.KindOf(AddrDNSWWW),
		Identity:   wwwDomain,
		Descriptor: www,
		DependsOn:  []string{AddrCDN},
	})

	if cfg.Flags.CreateDeployUser {
		user, err := descriptor(DeployUserDescriptor{
			UserName:    "deploy-" + cfg.Name,
			BucketScope: cfg.StorageBucketName,
			Tags:        cfg.Tags,
		})
		if err != nil {
			return nil, err
		}
		declared = append(declared, recon.DeclaredResource{
			Address:    AddrDeployUser,
			Kind:       recon.KindOf(AddrDeployUser),
			Identity:   "deploy-" + cfg.Name,
			Descriptor: user,
			DependsOn:  []string{AddrStorage},
		})
	}

	if cfg.Flags.EnableHealthCheck {
		monitor, err := descriptor(MonitorDescriptor{
			URL:             "https://" + cfg.Domain + "/",
			IntervalSeconds: 60,
			Tags:            cfg.Tags,
		})
		if err != nil {
			return nil, err
		}
		declared = append(declared, recon.DeclaredResource{
			Address:    AddrMonitor,
			Kind:       recon.KindOf(AddrMonitor),
			Identity:   "https://" + cfg.Domain + "/",
			Descriptor: monitor,
			DependsOn:  []string{AddrCDN},
		})
	}

	return declared, nil
}

// ProtectedIndex returns the protection flag for every address the catalog
// can ever declare, independent of feature flags. The planner uses it to
// classify stray bindings whose declarations are gone.
func ProtectedIndex() map[string]bool {
	return map[string]bool{
		AddrZone:       true,
		AddrCert:       true,
		AddrStorage:    false,
		AddrCDN:        false,
		AddrDNSApex:    false,
		AddrDNSWWW:     false,
		AddrDeployUser: false,
		AddrMonitor:    false,
	}
}

// SiteURL returns the canonical URL the deployed site is served from.
func SiteURL(cfg environ.EnvironmentConfig) string {
	return "https://" + cfg.Domain + "/"
}

// descriptor marshals a typed descriptor into canonical JSON. Struct field
// order is fixed, so equal descriptors are byte-identical.
func descriptor(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode descriptor: %w", err)
	}
	return data, nil
}

// ValidateDeclared validates every declared resource descriptor against
// the registered schemas.
func ValidateDeclared(ctx context.Context, registry *SchemaRegistry, declared []recon.DeclaredResource) error {
	for _, res := range declared {
		if err := registry.ValidateDescriptor(ctx, res.Kind, res.Descriptor); err != nil {
			return fmt.Errorf("descriptor for %s is invalid: %w", res.Address, err)
		}
	}
	return nil
}
