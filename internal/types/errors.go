package types

import "errors"

// Sentinel errors for healthcert operations.
var (
	// ErrUnknownVerificationType indicates a verification flavor other than verifier or wallet.
	ErrUnknownVerificationType = errors.New("unknown verification type")

	// ErrUnknownOperator indicates a CertLogic operation with an unrecognised operator.
	ErrUnknownOperator = errors.New("unrecognised operator")

	// ErrArity indicates a CertLogic operation with the wrong number of operands.
	ErrArity = errors.New("invalid number of operands")

	// ErrInvalidExpression indicates a CertLogic tree that is not a literal, array or operation.
	ErrInvalidExpression = errors.New("invalid CertLogic expression")

	// ErrExpressionTooDeep indicates an expression nesting beyond MaxExpressionDepth.
	ErrExpressionTooDeep = errors.New("expression exceeds maximum depth")

	// ErrInvalidRuleSet indicates a rule set whose logic failed validation.
	ErrInvalidRuleSet = errors.New("rule set contains invalid logic")

	// ErrNoRuleSet indicates a verification was requested without a loaded rule set.
	ErrNoRuleSet = errors.New("no rule set loaded")

	// ErrNoTrustList indicates a verification was requested without a trust list.
	ErrNoTrustList = errors.New("no trust list loaded")

	// ErrUnknownCertType indicates a certificate whose type could not be determined.
	ErrUnknownCertType = errors.New("unknown certificate type")

	// ErrBadPrefix indicates a QR payload without a known HC1: or LT1: prefix.
	ErrBadPrefix = errors.New("unknown payload prefix")

	// ErrBadBase45 indicates a payload that is not valid base45.
	ErrBadBase45 = errors.New("invalid base45 encoding")

	// ErrBadCompression indicates a zlib stream that could not be inflated.
	ErrBadCompression = errors.New("invalid zlib data")

	// ErrBadCose indicates bytes that are not a COSE_Sign1 structure.
	ErrBadCose = errors.New("invalid COSE_Sign1 message")

	// ErrBadCbor indicates a CWT payload that could not be decoded into a certificate.
	ErrBadCbor = errors.New("invalid CWT payload")

	// ErrPayloadTooLarge indicates a QR payload or inflated body above the size limits.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrUnsupportedKey indicates a signing key whose type or curve is not supported.
	ErrUnsupportedKey = errors.New("unsupported signing key")
)
