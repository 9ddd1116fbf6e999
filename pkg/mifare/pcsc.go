package mifare

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ebfe/scard"
	"github.com/skythen/apdu"
)

// Connection wraps a PC/SC reader with a MIFARE Classic card in the field.
// It implements Device for the authentication and read primitives.
type Connection struct {
	ctx       *scard.Context
	card      cardHandle
	Reader    string
	ReaderIdx int
}

// cardHandle is the part of *scard.Card a Connection drives.
type cardHandle interface {
	Transmit(cmd []byte) ([]byte, error)
	Status() (*scard.CardStatus, error)
	Disconnect(d scard.Disposition) error
}

// Connect establishes a connection to a card reader.
//
// Parameters:
//   - readerIndex: Index of the reader to use (0-based)
func Connect(readerIndex int) (*Connection, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("no readers found: %v", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("reader index out of range (0..%d)", len(readers)-1)
	}

	reader := readers[readerIndex]
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("connect failed: %w", err)
	}

	return &Connection{
		ctx:       ctx,
		card:      card,
		Reader:    reader,
		ReaderIdx: readerIndex,
	}, nil
}

// Close disconnects the card and releases the PC/SC context.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	if c.card != nil {
		_ = c.card.Disconnect(scard.LeaveCard)
	}
	if c.ctx != nil {
		_ = c.ctx.Release()
	}
}

// transmit sends a pseudo-APDU and returns the parsed response.
// Removal of the card is reported as ErrCardRemoved.
func (c *Connection) transmit(capdu apdu.Capdu) (*apdu.Rapdu, error) {
	if c == nil || c.card == nil {
		return nil, fmt.Errorf("connection not established")
	}
	raw, err := capdu.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encode APDU: %w", err)
	}
	resp, err := c.card.Transmit(raw)
	if err != nil {
		if errors.Is(err, scard.ErrRemovedCard) || errors.Is(err, scard.ErrNoSmartcard) || errors.Is(err, scard.ErrReaderUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrCardRemoved, err)
		}
		return nil, err
	}
	rapdu, err := apdu.ParseRapdu(resp)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return rapdu, nil
}

func statusWord(r *apdu.Rapdu) uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

// Identify reads the UID and derives the card type from the PC/SC ATR.
// PC/SC readers cannot classify the PRNG, so PRNG is PRNGUnknown.
func (c *Connection) Identify() (*CardInfo, error) {
	resp, err := c.transmit(apdu.Capdu{Cla: 0xFF, Ins: 0xCA, Ne: 256})
	if err != nil {
		return nil, &DeviceError{Op: OpIdentify, Block: -1, Cause: err}
	}
	if sw := statusWord(resp); sw != SWSuccess || len(resp.Data) == 0 {
		return nil, &DeviceError{Op: OpIdentify, Block: -1, Cause: &StatusError{Cmd: 0xCA, SW: sw}}
	}

	status, err := c.card.Status()
	if err != nil {
		return nil, &DeviceError{Op: OpIdentify, Block: -1, Cause: err}
	}

	info := &CardInfo{
		UID:  append([]byte{}, resp.Data...),
		Type: cardTypeFromATR(status.Atr),
		PRNG: PRNGUnknown,
	}
	// The ATR does not carry ATQA/SAK; report the values the type implies.
	switch info.Type {
	case CardType4K:
		info.ATQA, info.SAK = []byte{0x00, 0x02}, 0x18
	case CardTypeMini:
		info.ATQA, info.SAK = []byte{0x00, 0x44}, 0x09
	default:
		info.ATQA, info.SAK = []byte{0x00, 0x04}, 0x08
	}
	slog.Debug("identified card", "atr", hexUpper(status.Atr), "type", info.Type.String())
	return info, nil
}

// cardTypeFromATR reads the PC/SC Part 3 card name bytes (offsets 13-14).
func cardTypeFromATR(atr []byte) CardType {
	if len(atr) < 15 {
		return CardType1K
	}
	switch uint16(atr[13])<<8 | uint16(atr[14]) {
	case 0x0002:
		return CardType4K
	case 0x0026:
		return CardTypeMini
	default:
		return CardType1K
	}
}

// authenticate loads key into volatile slot 0 and runs General Authenticate.
func (c *Connection) authenticate(block int, keyType KeyType, key Key) error {
	resp, err := c.transmit(apdu.Capdu{Cla: 0xFF, Ins: 0x82, P1: 0x00, P2: 0x00, Data: key[:]})
	if err != nil {
		return err
	}
	if sw := statusWord(resp); sw != SWSuccess {
		return &StatusError{Cmd: 0x82, SW: sw}
	}

	data := []byte{0x01, 0x00, byte(block), byte(keyType), 0x00}
	resp, err = c.transmit(apdu.Capdu{Cla: 0xFF, Ins: 0x86, Data: data})
	if err != nil {
		return err
	}
	if sw := statusWord(resp); sw != SWSuccess {
		return &StatusError{Cmd: 0x86, SW: sw}
	}
	return nil
}

// CheckBlockKey authenticates block with key. A rejected key is (false, nil).
func (c *Connection) CheckBlockKey(block int, keyType KeyType, key Key) (bool, error) {
	err := c.authenticate(block, keyType, key)
	if err == nil {
		return true, nil
	}
	if IsAuthError(err) {
		return false, nil
	}
	return false, &DeviceError{Op: OpCheckBlockKey, Block: block, Cause: err}
}

// ReadBlock authenticates and reads one 16-byte block.
func (c *Connection) ReadBlock(block int, keyType KeyType, key Key) ([]byte, error) {
	if err := c.authenticate(block, keyType, key); err != nil {
		return nil, &DeviceError{Op: OpReadBlock, Block: block, Cause: err}
	}
	resp, err := c.transmit(apdu.Capdu{Cla: 0xFF, Ins: 0xB0, P1: 0x00, P2: byte(block), Ne: BlockSize})
	if err != nil {
		return nil, &DeviceError{Op: OpReadBlock, Block: block, Cause: err}
	}
	if sw := statusWord(resp); sw != SWSuccess {
		return nil, &DeviceError{Op: OpReadBlock, Block: block, Cause: &StatusError{Cmd: 0xB0, SW: sw}}
	}
	if len(resp.Data) != BlockSize {
		return nil, &DeviceError{Op: OpReadBlock, Block: block, Cause: fmt.Errorf("short block: %d bytes", len(resp.Data))}
	}
	return resp.Data, nil
}

// TestNonceDistance is not available over PC/SC.
func (c *Connection) TestNonceDistance(known AuthTarget) (*NonceDistance, error) {
	return nil, &DeviceError{Op: OpTestNonceDistance, Block: known.Block, Cause: ErrNotSupported}
}

// AcquireNested is not available over PC/SC.
func (c *Connection) AcquireNested(known, target AuthTarget) ([]NestedCapture, error) {
	return nil, &DeviceError{Op: OpAcquireNested, Block: target.Block, Cause: ErrNotSupported}
}

// AcquireStaticNested is not available over PC/SC.
func (c *Connection) AcquireStaticNested(known, target AuthTarget) ([]NestedCapture, error) {
	return nil, &DeviceError{Op: OpAcquireStaticNested, Block: target.Block, Cause: ErrNotSupported}
}
