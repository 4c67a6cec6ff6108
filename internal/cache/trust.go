package cache

// Trust ranks the provenance of a cached record. Higher trust never loses
// to lower trust while the lower-trust record is still active (§4.5).
type Trust uint8

const (
	TrustAdditional Trust = iota
	TrustGlue
	TrustAnswer
	TrustAuthAnswer
	TrustSecure
	TrustUltimate
)

func (t Trust) String() string {
	switch t {
	case TrustAdditional:
		return "additional"
	case TrustGlue:
		return "glue"
	case TrustAnswer:
		return "answer"
	case TrustAuthAnswer:
		return "auth-answer"
	case TrustSecure:
		return "secure"
	case TrustUltimate:
		return "ultimate"
	default:
		return "unknown"
	}
}
