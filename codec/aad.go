package codec

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"github.com/root-sector-ltd-and-co-kg/clinical-records-module-encryption/types"
)

// associatedData binds an envelope to its format, content type and to the
// purpose and id of the key. Fields are length prefixed so no two distinct
// inputs encode to the same bytes.
func associatedData(version uint8, alg types.Algorithm, contentType types.ContentType, key types.Key) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(version)
	addString(b, string(alg))
	addString(b, string(contentType))
	addString(b, string(key.Purpose))
	addString(b, key.ID)
	ad, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode associated data: %w", err)
	}
	return ad, nil
}

func addString(b *cryptobyte.Builder, s string) {
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(s))
	})
}
