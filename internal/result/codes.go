// Package result defines the status codes and error kinds returned by the
// virtual directory engine. Codes follow the RFC 4511 numbering so that a
// protocol front end can forward them unchanged.
package result

// Code represents an operation status as defined in RFC 4511 Section 4.1.9.
type Code int

const (
	// Success indicates the operation completed successfully.
	Success Code = 0

	// OperationsError indicates an error occurred during processing
	// that is not covered by another result code.
	OperationsError Code = 1

	// TimeLimitExceeded indicates the operation ran out of time.
	TimeLimitExceeded Code = 3

	// SizeLimitExceeded indicates the requested size limit was reached
	// before all results were returned.
	SizeLimitExceeded Code = 4

	// NoSuchAttribute indicates the specified attribute does not
	// exist in the entry.
	NoSuchAttribute Code = 16

	// UndefinedAttributeType indicates the attribute is not mapped.
	UndefinedAttributeType Code = 17

	// ConstraintViolation indicates a value failed a field constraint.
	ConstraintViolation Code = 19

	// AttributeOrValueExists indicates the attribute or value
	// already exists in the entry.
	AttributeOrValueExists Code = 20

	// NoSuchObject indicates the entry, its parent or a backend row
	// does not exist.
	NoSuchObject Code = 32

	// InvalidDNSyntax indicates the DN syntax is invalid.
	InvalidDNSyntax Code = 34

	// InvalidCredentials indicates the supplied credentials are invalid.
	InvalidCredentials Code = 49

	// InsufficientAccessRights indicates a write to a read-only source.
	InsufficientAccessRights Code = 50

	// Busy indicates a lock could not be acquired in time. Retryable.
	Busy Code = 51

	// Unavailable indicates a backend is unreachable.
	Unavailable Code = 52

	// UnwillingToPerform indicates the operation is not supported for
	// the addressed entry.
	UnwillingToPerform Code = 53

	// NamingViolation indicates the DN does not fit the entry mapping.
	NamingViolation Code = 64

	// NotAllowedOnNonLeaf indicates the operation is not allowed on
	// an entry with children.
	NotAllowedOnNonLeaf Code = 66

	// NotAllowedOnRDN indicates the operation would remove an RDN value.
	NotAllowedOnRDN Code = 67

	// EntryAlreadyExists indicates the entry already exists.
	EntryAlreadyExists Code = 68

	// Other indicates an error not covered by other result codes.
	Other Code = 80
)

// String returns the string representation of the result code.
func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case OperationsError:
		return "operationsError"
	case TimeLimitExceeded:
		return "timeLimitExceeded"
	case SizeLimitExceeded:
		return "sizeLimitExceeded"
	case NoSuchAttribute:
		return "noSuchAttribute"
	case UndefinedAttributeType:
		return "undefinedAttributeType"
	case ConstraintViolation:
		return "constraintViolation"
	case AttributeOrValueExists:
		return "attributeOrValueExists"
	case NoSuchObject:
		return "noSuchObject"
	case InvalidDNSyntax:
		return "invalidDNSyntax"
	case InvalidCredentials:
		return "invalidCredentials"
	case InsufficientAccessRights:
		return "insufficientAccessRights"
	case Busy:
		return "busy"
	case Unavailable:
		return "unavailable"
	case UnwillingToPerform:
		return "unwillingToPerform"
	case NamingViolation:
		return "namingViolation"
	case NotAllowedOnNonLeaf:
		return "notAllowedOnNonLeaf"
	case NotAllowedOnRDN:
		return "notAllowedOnRDN"
	case EntryAlreadyExists:
		return "entryAlreadyExists"
	case Other:
		return "other"
	default:
		return "unknown"
	}
}

// IsSuccess returns true if the result code indicates success.
func (c Code) IsSuccess() bool {
	return c == Success
}

// Kind classifies the code into the engine's error taxonomy.
func (c Code) Kind() Kind {
	switch c {
	case Success:
		return KindNone
	case NoSuchObject, NoSuchAttribute:
		return KindNotFound
	case EntryAlreadyExists, NotAllowedOnNonLeaf, AttributeOrValueExists:
		return KindConflict
	case Busy:
		return KindResourceTimeout
	case InvalidDNSyntax, NamingViolation, UndefinedAttributeType, UnwillingToPerform,
		NotAllowedOnRDN, ConstraintViolation, InsufficientAccessRights, InvalidCredentials:
		return KindInvalidRequest
	default:
		return KindBackendFailure
	}
}
