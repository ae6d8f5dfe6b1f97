package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/bitfsorg/sharepool-go/wallet"
)

const (
	// LedgerSize: marketing(20) + liquidity(20) + collection(20) + total_released(8) + allocated_shares(8)
	LedgerSize = 3*wallet.AddressLen + 8 + 8

	// ClaimAccountSize: total_released(8) + shares(8)
	ClaimAccountSize = 8 + 8
)

// SerializeLedger encodes a Ledger to its fixed binary layout.
func SerializeLedger(l *Ledger) []byte {
	buf := make([]byte, LedgerSize)
	offset := 0

	for _, addr := range []wallet.Address{l.Marketing, l.Liquidity, l.Collection} {
		copy(buf[offset:offset+wallet.AddressLen], addr[:])
		offset += wallet.AddressLen
	}

	binary.BigEndian.PutUint64(buf[offset:offset+8], l.TotalReleased)
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:offset+8], l.AllocatedShares)
	return buf
}

// DeserializeLedger decodes a Ledger from its fixed binary layout.
func DeserializeLedger(data []byte) (*Ledger, error) {
	if len(data) != LedgerSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidLedgerData, LedgerSize, len(data))
	}
	l := &Ledger{}
	offset := 0

	for _, addr := range []*wallet.Address{&l.Marketing, &l.Liquidity, &l.Collection} {
		copy(addr[:], data[offset:offset+wallet.AddressLen])
		offset += wallet.AddressLen
	}

	l.TotalReleased = binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8
	l.AllocatedShares = binary.BigEndian.Uint64(data[offset : offset+8])
	return l, nil
}

// SerializeClaimAccount encodes a ClaimAccount to its fixed binary layout.
func SerializeClaimAccount(c *ClaimAccount) []byte {
	buf := make([]byte, ClaimAccountSize)
	binary.BigEndian.PutUint64(buf[0:8], c.TotalReleased)
	binary.BigEndian.PutUint64(buf[8:16], c.Shares)
	return buf
}

// DeserializeClaimAccount decodes a ClaimAccount and checks its share range.
func DeserializeClaimAccount(data []byte) (*ClaimAccount, error) {
	if len(data) != ClaimAccountSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidClaimData, ClaimAccountSize, len(data))
	}
	c := &ClaimAccount{
		TotalReleased: binary.BigEndian.Uint64(data[0:8]),
		Shares:        binary.BigEndian.Uint64(data[8:16]),
	}
	if c.Shares == 0 || c.Shares > TotalShares {
		return nil, fmt.Errorf("%w: shares %d out of range", ErrInvalidClaimData, c.Shares)
	}
	return c, nil
}
