package store

import (
	"courier/internal/crypto"
	"courier/pkg/logx"
)

// fieldCodec wraps the cipher at the store's read/write boundary. Every
// sensitive column passes through seal() on write and open() on read; the
// rest of the store never sees ciphertext.
//
// With no key configured the codec is a passthrough: plaintext storage,
// announced once at open. That is a supported degraded mode, not an error.
type fieldCodec struct {
	cipher *crypto.FieldCipher
	log    logx.Logger
}

func newFieldCodec(passphrase string, log logx.Logger) (*fieldCodec, error) {
	if passphrase == "" {
		log.Warn("no encryption key configured; sensitive fields will be stored in plaintext")
		return &fieldCodec{log: log}, nil
	}
	c, err := crypto.New(passphrase)
	if err != nil {
		return nil, err
	}
	return &fieldCodec{cipher: c, log: log}, nil
}

func (fc *fieldCodec) seal(plain string) (string, error) {
	if fc.cipher == nil || plain == "" {
		return plain, nil
	}
	return fc.cipher.Encrypt(plain)
}

// open decrypts a stored value. Undecryptable data (tamper, key change,
// legacy plaintext rows after a key was introduced) collapses to an empty
// value with a warning; no cause detail is surfaced.
func (fc *fieldCodec) open(stored, column string) string {
	if fc.cipher == nil || stored == "" {
		return stored
	}
	plain, ok := fc.cipher.Decrypt(stored)
	if !ok {
		fc.log.Warn("failed to decrypt stored field", logx.String("column", column))
		return ""
	}
	return plain
}

func (fc *fieldCodec) sealSchedule(s *Schedule) error {
	var err error
	if s.RecipientEmail, err = fc.seal(s.RecipientEmail); err != nil {
		return err
	}
	if s.WebhookURL, err = fc.seal(s.WebhookURL); err != nil {
		return err
	}
	if s.WebhookSecret, err = fc.seal(s.WebhookSecret); err != nil {
		return err
	}
	return nil
}

func (fc *fieldCodec) openSchedule(s *Schedule) {
	s.RecipientEmail = fc.open(s.RecipientEmail, "recipient_email")
	s.WebhookURL = fc.open(s.WebhookURL, "webhook_url")
	s.WebhookSecret = fc.open(s.WebhookSecret, "webhook_secret")
}
