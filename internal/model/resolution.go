package model

import (
	"github.com/RegistryAccord/registryaccord-resolver-go/internal/failure"
)

// Content types produced by resolution and dereferencing.
const (
	ContentTypeDIDLDJSON = "application/did+ld+json"
	ContentTypeDIDJSON   = "application/did+json"
)

// Resolution error codes.
const (
	ErrorInvalidDID                 = "invalidDid"
	ErrorMethodNotSupported         = "methodNotSupported"
	ErrorNotFound                   = "notFound"
	ErrorRepresentationNotSupported = "representationNotSupported"
	ErrorInternal                   = "internalError"
)

// Dereferencing error codes. Resolution errors propagate unchanged.
const (
	ErrorInvalidDIDURL = "invalidDidUrl"
)

// ResolutionMetadata describes the outcome of a resolution.
type ResolutionMetadata struct {
	ContentType  string `json:"contentType,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// DocumentMetadata carries method-specific facts about a document.
type DocumentMetadata struct {
	Created      string   `json:"created,omitempty"`
	Updated      string   `json:"updated,omitempty"`
	Deactivated  bool     `json:"deactivated,omitempty"`
	VersionID    string   `json:"versionId,omitempty"`
	CanonicalID  string   `json:"canonicalId,omitempty"`
	EquivalentID []string `json:"equivalentId,omitempty"`
}

// ResolutionResult is the value returned by a resolution. When
// ResolutionMetadata.Error is set, Document is nil.
type ResolutionResult struct {
	ResolutionMetadata ResolutionMetadata `json:"didResolutionMetadata"`
	Document           *Document          `json:"didDocument"`
	DocumentMetadata   DocumentMetadata   `json:"didDocumentMetadata"`
}

// Resolved builds a successful result.
func Resolved(doc Document, meta DocumentMetadata) ResolutionResult {
	return ResolutionResult{
		ResolutionMetadata: ResolutionMetadata{ContentType: ContentTypeDIDLDJSON},
		Document:           &doc,
		DocumentMetadata:   meta,
	}
}

// ResolutionError builds a failed result with no document.
func ResolutionError(code, message string) ResolutionResult {
	return ResolutionResult{ResolutionMetadata: ResolutionMetadata{Error: code, ErrorMessage: message}}
}

// Failed reports whether the result carries an error code.
func (r ResolutionResult) Failed() bool { return r.ResolutionMetadata.Error != "" }

// Err converts the result's error code into a structured failure, or nil.
func (r ResolutionResult) Err() error {
	return codeToFailure("resolve", r.ResolutionMetadata.Error, r.ResolutionMetadata.ErrorMessage)
}

// Resource is the content addressed by a DID URL: a Document, a
// VerificationMethod or a Service.
type Resource interface {
	ResourceID() string
	isResource()
}

func (d Document) ResourceID() string           { return d.ID }
func (vm VerificationMethod) ResourceID() string { return vm.ID }
func (s Service) ResourceID() string            { return s.ID }

func (Document) isResource()           {}
func (VerificationMethod) isResource() {}
func (Service) isResource()            {}

// DereferencingMetadata describes the outcome of a dereference.
type DereferencingMetadata struct {
	ContentType  string `json:"contentType,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// DereferencingResult is the value returned by a dereference. When
// DereferencingMetadata.Error is set, Content is nil.
type DereferencingResult struct {
	DereferencingMetadata DereferencingMetadata `json:"dereferencingMetadata"`
	Content               Resource              `json:"contentStream,omitempty"`
	ContentMetadata       DocumentMetadata      `json:"contentMetadata"`
}

// DereferencingError builds a failed dereferencing result.
func DereferencingError(code, message string) DereferencingResult {
	return DereferencingResult{DereferencingMetadata: DereferencingMetadata{Error: code, ErrorMessage: message}}
}

// Failed reports whether the result carries an error code.
func (r DereferencingResult) Failed() bool { return r.DereferencingMetadata.Error != "" }

// Err converts the result's error code into a structured failure, or nil.
func (r DereferencingResult) Err() error {
	return codeToFailure("dereference", r.DereferencingMetadata.Error, r.DereferencingMetadata.ErrorMessage)
}

func codeToFailure(op, code, message string) error {
	var kind failure.Kind
	switch code {
	case "":
		return nil
	case ErrorInvalidDID:
		kind = failure.InvalidDID
	case ErrorInvalidDIDURL:
		kind = failure.InvalidDIDURL
	case ErrorMethodNotSupported:
		kind = failure.MethodNotSupported
	case ErrorNotFound:
		kind = failure.NotFound
	default:
		kind = failure.ResolutionFailure
	}
	return &failure.Error{Kind: kind, Op: op, Code: code, Reason: message}
}
