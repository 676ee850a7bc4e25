package checkin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

const keyInfo = "checkin-token-v1"

// MinSecretLen is the shortest server secret NewCodec accepts.
const MinSecretLen = 16

// Payload is the content of a scannable check-in code. The JSON keys are a
// stable wire format.
type Payload struct {
	AppointmentID string `json:"appointmentId"`
	StudentID     string `json:"studentId"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Program       string `json:"program"`
	CounselorID   string `json:"counselorId"`
	Nonce         string `json:"nonce"`
	Exp           int64  `json:"exp"`
	Hash          string `json:"hash"`
}

func (p Payload) canonical() string {
	return strings.Join([]string{
		p.AppointmentID, p.StudentID, p.Date, p.Time, p.Program, p.CounselorID, p.Nonce,
		strconv.FormatInt(p.Exp, 10),
	}, "|")
}

// Codec seals and opens payloads with an HMAC-SHA256 key derived from the
// server secret.
type Codec struct {
	key []byte
}

func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, errors.New("check-in secret is too short")
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, err
	}
	return &Codec{key: key}, nil
}

func (c *Codec) sum(p Payload) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(p.canonical()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Seal fills in the hash and returns the serialized payload.
func (c *Codec) Seal(p Payload) (Payload, string, error) {
	p.Hash = c.sum(p)
	raw, err := json.Marshal(p)
	if err != nil {
		return Payload{}, "", err
	}
	return p, string(raw), nil
}

// Open parses raw and checks its MAC and expiry. Every failure is
// ErrInvalidToken.
func (c *Codec) Open(raw string, now time.Time) (Payload, error) {
	const op = "checkin.Open"

	var p Payload
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Payload{}, model.Wrap(op, model.ErrInvalidToken, "malformed payload", err)
	}
	if p.AppointmentID == "" || p.Nonce == "" || p.Hash == "" || p.Exp == 0 {
		return Payload{}, model.E(op, model.ErrInvalidToken, "incomplete payload")
	}
	got, err := hex.DecodeString(p.Hash)
	if err != nil {
		return Payload{}, model.E(op, model.ErrInvalidToken, "malformed hash")
	}
	want, _ := hex.DecodeString(c.sum(p))
	if !hmac.Equal(got, want) {
		return Payload{}, model.E(op, model.ErrInvalidToken, "hash mismatch")
	}
	if now.Unix() > p.Exp {
		return Payload{}, model.E(op, model.ErrInvalidToken, "token expired")
	}
	return p, nil
}
