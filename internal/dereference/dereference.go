// Package dereference resolves DID URLs to the resource they address: the
// whole DID document, one of its verification methods or one of its services.
package dereference

import (
	"context"
	"fmt"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/did"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/resolver"
)

// Resolver is the subset of *resolver.Resolver the Dereferencer needs.
type Resolver interface {
	ResolveWith(ctx context.Context, didURI string, opts resolver.Options) (model.ResolutionResult, error)
}

// Dereferencer turns DID URLs into resources. It is safe for concurrent use
// when its Resolver is.
type Dereferencer struct {
	resolver Resolver
}

// New returns a Dereferencer backed by r.
func New(r Resolver) *Dereferencer {
	return &Dereferencer{resolver: r}
}

// Dereference dereferences didURL with default options.
func (d *Dereferencer) Dereference(ctx context.Context, didURL string) (model.DereferencingResult, error) {
	return d.DereferenceWith(ctx, didURL, resolver.Options{})
}

// DereferenceWith dereferences didURL. Failures are reported in the result's
// metadata; the returned error only carries resolver cache I/O failures.
//
// A URL with a query component always yields the whole document, even when it
// also carries a fragment.
func (d *Dereferencer) DereferenceWith(ctx context.Context, didURL string, opts resolver.Options) (model.DereferencingResult, error) {
	parsed, ok := did.Parse(didURL)
	if !ok {
		return model.DereferencingError(model.ErrorInvalidDIDURL, fmt.Sprintf("cannot parse %q", didURL)), nil
	}

	res, err := d.resolver.ResolveWith(ctx, parsed.URI, opts)
	if err != nil {
		return model.DereferencingResult{}, err
	}
	if res.Failed() {
		return model.DereferencingError(res.ResolutionMetadata.Error, res.ResolutionMetadata.ErrorMessage), nil
	}
	doc := res.Document
	contentType := res.ResolutionMetadata.ContentType

	if parsed.HasQuery() || !parsed.HasFragment() {
		return found(*doc, contentType, res.DocumentMetadata), nil
	}

	candidates := []string{didURL, parsed.Fragment, "#" + parsed.Fragment}
	if vm, ok := doc.FindVerificationMethod(candidates...); ok {
		return found(vm, contentType, res.DocumentMetadata), nil
	}
	if svc, ok := doc.FindService(candidates...); ok {
		return found(svc, contentType, res.DocumentMetadata), nil
	}
	return model.DereferencingError(model.ErrorNotFound, fmt.Sprintf("%q not found in %s", "#"+parsed.Fragment, parsed.URI)), nil
}

func found(content model.Resource, contentType string, meta model.DocumentMetadata) model.DereferencingResult {
	return model.DereferencingResult{
		DereferencingMetadata: model.DereferencingMetadata{ContentType: contentType},
		Content:               content,
		ContentMetadata:       meta,
	}
}
