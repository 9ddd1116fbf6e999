package mifare

// Device primitive names, used in DeviceError.Op and by the emulator's
// fault injection.
const (
	OpIdentify            = "identify"
	OpCheckBlockKey       = "check_block_key"
	OpReadBlock           = "read_block"
	OpTestNonceDistance   = "test_nonce_distance"
	OpAcquireNested       = "acquire_nested"
	OpAcquireStaticNested = "acquire_static_nested"
)

// AuthTarget addresses one authentication: a block, a key type and, for the
// known side of a nested capture, the key itself.
type AuthTarget struct {
	Block   int
	KeyType KeyType
	Key     Key
}

// NonceDistance is the result of measuring nonce distance with a known key.
type NonceDistance struct {
	UID      uint32
	Distance uint32
}

// NestedCapture is one nested-authentication sample: the two tag nonces and
// the parity bits of the encrypted nonce.
type NestedCapture struct {
	Nt1 uint32 `cbor:"nt1"`
	Nt2 uint32 `cbor:"nt2"`
	Par uint8  `cbor:"par"`
}

// Device is the reader channel. Implementations serve one command at a time;
// callers must not issue overlapping calls.
//
// CheckBlockKey returns (false, nil) when the key is rejected. Every other
// failure is returned as an error, normally a *DeviceError.
type Device interface {
	Identify() (*CardInfo, error)
	CheckBlockKey(block int, keyType KeyType, key Key) (bool, error)
	ReadBlock(block int, keyType KeyType, key Key) ([]byte, error)
	TestNonceDistance(known AuthTarget) (*NonceDistance, error)
	AcquireNested(known, target AuthTarget) ([]NestedCapture, error)
	AcquireStaticNested(known, target AuthTarget) ([]NestedCapture, error)
}

// MagicDetector is implemented by devices that can probe for Gen1a
// ("magic") cards answering the backdoor wake-up sequence.
type MagicDetector interface {
	CheckGen1a() (bool, error)
}
