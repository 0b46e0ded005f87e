package bloom

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const (
	DefaultFalsePositiveRate = 0.01
	DefaultCountingBits      = 16
	DefaultCharsetName       = "UTF-8"
	DefaultRedisPort         = 6379
	DefaultRedisConnections  = 10
)

// HashMethod selects one of the supported hash families.
type HashMethod string

const (
	HashMD5               HashMethod = "MD5"
	HashSHA256            HashMethod = "SHA256"
	HashSHA384            HashMethod = "SHA384"
	HashSHA512            HashMethod = "SHA512"
	HashCRC32             HashMethod = "CRC32"
	HashAdler32           HashMethod = "Adler32"
	HashMurmur3           HashMethod = "Murmur3"
	HashMurmur2DoubleHash HashMethod = "Murmur2DoubleHash"
	HashFixedSeed         HashMethod = "FixedSeed"
)

// FilterBuilder collects the parameters of a filter and derives the missing
// ones. At least two of {ExpectedElements, Size, Hashes, FalsePositiveRate}
// must be supplied; Complete fills in the rest using the standard optimality
// relations. A zero value means "not supplied".
type FilterBuilder struct {
	ExpectedElements  int
	Size              int
	Hashes            int
	FalsePositiveRate float64
	Method            HashMethod
	CountingBits      int
	CharsetName       string

	// Remote backend parameters. Name identifies the dataset; the rest
	// describe the Redis deployment the filter lives in.
	Name                      string
	RedisHost                 string
	RedisPort                 int
	RedisConnections          int
	ReadSlaves                []string
	RedisExpireAtEpochSeconds int64
	OverwriteIfExists         bool

	completed bool
	hashFn    positionFunc
	charEnc   encoding.Encoding
}

// Complete validates the supplied parameters and derives the missing ones.
// After a successful call all of n, m, k and p are mutually consistent.
func (b *FilterBuilder) Complete() error {
	if b.completed {
		return nil
	}
	if b.ExpectedElements < 0 || b.Size < 0 || b.Hashes < 0 {
		return fmt.Errorf("%w: negative parameter", ErrInvalidConfig)
	}
	if b.FalsePositiveRate != 0 && (b.FalsePositiveRate <= 0 || b.FalsePositiveRate >= 1) {
		return fmt.Errorf("%w: false positive rate %v outside (0,1)", ErrInvalidConfig, b.FalsePositiveRate)
	}

	supplied := 0
	for _, given := range []bool{b.ExpectedElements > 0, b.Size > 0, b.Hashes > 0, b.FalsePositiveRate > 0} {
		if given {
			supplied++
		}
	}
	if supplied < 2 {
		return fmt.Errorf("%w: at least two of expectedElements, size, hashes and falsePositiveProbability are required", ErrInvalidConfig)
	}

	if b.Size == 0 && b.ExpectedElements > 0 && b.FalsePositiveRate > 0 {
		b.Size = OptimalSize(b.ExpectedElements, b.FalsePositiveRate)
	}
	if b.Size == 0 {
		return fmt.Errorf("%w: bit array size cannot be derived", ErrInvalidConfig)
	}
	if b.ExpectedElements == 0 && b.Hashes == 0 && b.FalsePositiveRate > 0 {
		n := float64(b.Size) * math.Ln2 * math.Ln2 / -math.Log(b.FalsePositiveRate)
		b.ExpectedElements = int(math.Ceil(n))
	}
	if b.Hashes == 0 {
		if b.ExpectedElements == 0 {
			return fmt.Errorf("%w: hash count cannot be derived", ErrInvalidConfig)
		}
		b.Hashes = OptimalHashes(b.ExpectedElements, b.Size)
	}
	if b.ExpectedElements == 0 {
		if b.FalsePositiveRate > 0 {
			b.ExpectedElements = achievableElements(b.Size, b.Hashes, b.FalsePositiveRate)
		} else {
			n := float64(b.Size) * math.Ln2 * math.Ln2 / -math.Log(DefaultFalsePositiveRate)
			b.ExpectedElements = int(math.Ceil(n))
		}
	}
	b.FalsePositiveRate = AchievableFalsePositiveRate(b.Size, b.Hashes, float64(b.ExpectedElements))

	if b.Method == "" {
		b.Method = HashMD5
	}
	hashFn, err := positionFunctionFor(b.Method)
	if err != nil {
		return err
	}
	b.hashFn = hashFn

	if b.CountingBits == 0 {
		b.CountingBits = DefaultCountingBits
	}
	switch b.CountingBits {
	case 4, 8, 16, 32, 64:
	default:
		return fmt.Errorf("%w: unsupported counter width %d", ErrInvalidConfig, b.CountingBits)
	}

	if b.CharsetName == "" {
		b.CharsetName = DefaultCharsetName
	}
	if !isUTF8Charset(b.CharsetName) {
		enc, err := htmlindex.Get(b.CharsetName)
		if err != nil {
			return fmt.Errorf("%w: unknown charset %q", ErrInvalidConfig, b.CharsetName)
		}
		b.charEnc = enc
	}

	if b.RedisPort == 0 {
		b.RedisPort = DefaultRedisPort
	}
	if b.RedisConnections == 0 {
		b.RedisConnections = DefaultRedisConnections
	}

	b.completed = true
	return nil
}

// Hash maps the element to Hashes bit positions in [0, Size). The builder must
// be completed first.
func (b *FilterBuilder) Hash(element []byte) []uint32 {
	return b.hashFn(element, uint32(b.Size), uint32(b.Hashes))
}

// ToBytes converts a string element to the byte representation used for
// hashing, honoring the configured charset.
func (b *FilterBuilder) ToBytes(element string) []byte {
	if b.charEnc == nil {
		return []byte(element)
	}
	converted, _, err := transform.Bytes(b.charEnc.NewEncoder(), []byte(element))
	if err != nil {
		return []byte(element)
	}
	return converted
}

// IsCompatibleTo reports whether two filters built from these configurations
// may be combined with union or intersect.
func (b *FilterBuilder) IsCompatibleTo(other *FilterBuilder) bool {
	return b.Size == other.Size &&
		b.Hashes == other.Hashes &&
		b.Method == other.Method &&
		strings.EqualFold(b.CharsetName, other.CharsetName)
}

// Clone returns a copy that can be completed and mutated independently.
func (b *FilterBuilder) Clone() *FilterBuilder {
	clone := *b
	clone.ReadSlaves = append([]string(nil), b.ReadSlaves...)
	return &clone
}

func isUTF8Charset(name string) bool {
	return strings.EqualFold(name, "UTF-8") || strings.EqualFold(name, "UTF8")
}

// OptimalSize returns the bit array size m minimizing the false positive rate
// for n expected elements: m = -n*ln(p) / (ln 2)^2.
func OptimalSize(expectedElements int, falsePositiveRate float64) int {
	m := -float64(expectedElements) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)
	return int(math.Ceil(m))
}

// OptimalHashes returns the hash count k = (m/n) * ln 2, at least 1.
func OptimalHashes(expectedElements, size int) int {
	k := int(math.Round(float64(size) / float64(expectedElements) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return k
}

// AchievableFalsePositiveRate returns p = (1 - e^(-k*n/m))^k.
func AchievableFalsePositiveRate(size, hashes int, insertedElements float64) float64 {
	exponent := -float64(hashes) * insertedElements / float64(size)
	return math.Pow(1-math.Exp(exponent), float64(hashes))
}

// achievableElements solves p = (1 - e^(-k*n/m))^k for n and rounds up.
func achievableElements(size, hashes int, falsePositiveRate float64) int {
	perHash := math.Pow(falsePositiveRate, 1/float64(hashes))
	n := -float64(size) / float64(hashes) * math.Log(1-perHash)
	return int(math.Ceil(n))
}
