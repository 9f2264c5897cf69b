package proof

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// RejectError is the structured reason a submission failed validation. The
// zero Field means the body as a whole was rejected.
type RejectError struct {
	Field  string
	Reason string
}

func (e *RejectError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func reject(field, reason string) *RejectError {
	return &RejectError{Field: field, Reason: reason}
}

// ParseSubmission classifies a raw intake body as either a whole proof or
// one chunk of a split proof. Exactly one of the two results is non-nil on
// success. No field is coerced: wrong-typed values are rejected with the
// offending field named.
func ParseSubmission(raw []byte) (*ProofPayload, *ChunkedProofPayload, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, nil, err
	}
	if _, isChunk := obj["chunk_id"]; isChunk {
		chunk, err := parseChunk(obj)
		if err != nil {
			return nil, nil, err
		}
		return nil, chunk, nil
	}
	p, err := parseProof(obj)
	if err != nil {
		return nil, nil, err
	}
	return p, nil, nil
}

// ParseProofBytes parses raw bytes that must contain a whole proof, such as
// an assembled chunk sequence or a message tailed from the consensus log.
func ParseProofBytes(raw []byte) (*ProofPayload, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return parseProof(obj)
}

// ParseStateMessage decodes an hcs-17 state_hash envelope. Messages under a
// different protocol or operation are rejected.
func ParseStateMessage(raw []byte) (*StateMessage, error) {
	var msg StateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, reject("", "not a JSON object")
	}
	if msg.Protocol != "hcs-17" {
		return nil, reject("p", "unsupported protocol")
	}
	if msg.Operation != "state_hash" {
		return nil, reject("op", "unsupported operation")
	}
	return &msg, nil
}

func decodeObject(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, reject("", "body must be a JSON object")
	}
	return obj, nil
}

func parseProof(obj map[string]interface{}) (*ProofPayload, error) {
	p := &ProofPayload{}
	var err error
	if p.Epoch, err = uintField(obj, "epoch"); err != nil {
		return nil, err
	}
	if p.StateHash, err = strField(obj, "stateHash"); err != nil {
		return nil, err
	}
	if p.ThresholdFingerprint, err = strField(obj, "thresholdFingerprint"); err != nil {
		return nil, err
	}
	if p.PetalID, err = strField(obj, "petalId"); err != nil {
		return nil, err
	}
	if p.PetalAccountID, err = strField(obj, "petalAccountId"); err != nil {
		return nil, err
	}
	if p.PetalStateTopicID, err = strField(obj, "petalStateTopicId"); err != nil {
		return nil, err
	}
	if p.FloraAccountID, err = strField(obj, "floraAccountId"); err != nil {
		return nil, err
	}
	if p.Participants, err = strSliceField(obj, "participants"); err != nil {
		return nil, err
	}
	if p.AdapterFingerprints, err = strMapField(obj, "adapterFingerprints"); err != nil {
		return nil, err
	}
	if p.RegistryTopicID, err = strField(obj, "registryTopicId"); err != nil {
		return nil, err
	}
	if p.Timestamp, err = strField(obj, "timestamp"); err != nil {
		return nil, err
	}
	if p.Records, err = recordsField(obj, "records"); err != nil {
		return nil, err
	}
	if p.HCSMessage, err = optStrField(obj, "hcsMessage"); err != nil {
		return nil, err
	}
	if p.ConsensusTimestamp, err = optStrField(obj, "consensusTimestamp"); err != nil {
		return nil, err
	}
	if p.SequenceNumber, err = optUintField(obj, "sequenceNumber"); err != nil {
		return nil, err
	}
	return p, nil
}

func parseChunk(obj map[string]interface{}) (*ChunkedProofPayload, error) {
	c := &ChunkedProofPayload{}
	var err error
	if c.PetalID, err = strField(obj, "petalId"); err != nil {
		return nil, err
	}
	if c.Epoch, err = uintField(obj, "epoch"); err != nil {
		return nil, err
	}
	chunkID, err := uintField(obj, "chunk_id")
	if err != nil {
		return nil, err
	}
	total, err := uintField(obj, "total_chunks")
	if err != nil {
		return nil, err
	}
	if chunkID < 1 {
		return nil, reject("chunk_id", "must be a positive integer")
	}
	if total < 1 {
		return nil, reject("total_chunks", "must be a positive integer")
	}
	if chunkID > total {
		return nil, reject("chunk_id", "exceeds total_chunks")
	}
	c.ChunkID = int(chunkID)
	c.TotalChunks = int(total)
	if c.Data, err = strField(obj, "data"); err != nil {
		return nil, err
	}
	if _, decErr := base64.StdEncoding.DecodeString(c.Data); decErr != nil {
		return nil, reject("data", "must be base64")
	}
	return c, nil
}

func strField(obj map[string]interface{}, name string) (string, error) {
	v, ok := obj[name]
	if !ok {
		return "", reject(name, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", reject(name, "must be a string")
	}
	if s == "" {
		return "", reject(name, "must not be empty")
	}
	return s, nil
}

func optStrField(obj map[string]interface{}, name string) (string, error) {
	v, ok := obj[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", reject(name, "must be a string")
	}
	return s, nil
}

func uintField(obj map[string]interface{}, name string) (uint64, error) {
	v, ok := obj[name]
	if !ok {
		return 0, reject(name, "is required")
	}
	return uintValue(v, name)
}

func optUintField(obj map[string]interface{}, name string) (uint64, error) {
	v, ok := obj[name]
	if !ok || v == nil {
		return 0, nil
	}
	return uintValue(v, name)
}

func uintValue(v interface{}, name string) (uint64, error) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, reject(name, "must be a number")
	}
	u, err := strconv.ParseUint(num.String(), 10, 64)
	if err != nil {
		return 0, reject(name, "must be a non-negative integer")
	}
	return u, nil
}

func strSliceField(obj map[string]interface{}, name string) ([]string, error) {
	v, ok := obj[name]
	if !ok {
		return nil, reject(name, "is required")
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, reject(name, "must be an array")
	}
	out := make([]string, 0, len(arr))
	for i, el := range arr {
		s, ok := el.(string)
		if !ok {
			return nil, reject(fmt.Sprintf("%s[%d]", name, i), "must be a string")
		}
		out = append(out, s)
	}
	return out, nil
}

func strMapField(obj map[string]interface{}, name string) (map[string]string, error) {
	v, ok := obj[name]
	if !ok {
		return nil, reject(name, "is required")
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, reject(name, "must be an object")
	}
	out := make(map[string]string, len(m))
	for k, el := range m {
		s, ok := el.(string)
		if !ok {
			return nil, reject(fmt.Sprintf("%s.%s", name, k), "must be a string")
		}
		out[k] = s
	}
	return out, nil
}

func recordsField(obj map[string]interface{}, name string) ([]*AdapterRecord, error) {
	v, ok := obj[name]
	if !ok {
		return nil, reject(name, "is required")
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, reject(name, "must be an array")
	}
	if len(arr) == 0 {
		return nil, reject(name, "must not be empty")
	}
	out := make([]*AdapterRecord, 0, len(arr))
	for i, el := range arr {
		rec, err := parseRecord(el, fmt.Sprintf("%s[%d]", name, i))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRecord(v interface{}, field string) (*AdapterRecord, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, reject(field, "must be an object")
	}
	rec := &AdapterRecord{}
	var err error
	if rec.AdapterID, err = strField(obj, "adapterId"); err != nil {
		return nil, prefix(field, err)
	}
	if rec.EntityID, err = strField(obj, "entityId"); err != nil {
		return nil, prefix(field, err)
	}
	if rec.Timestamp, err = strField(obj, "timestamp"); err != nil {
		return nil, prefix(field, err)
	}
	if rec.SourceFingerprint, err = strField(obj, "sourceFingerprint"); err != nil {
		return nil, prefix(field, err)
	}
	payload, ok := obj["payload"].(map[string]interface{})
	if !ok {
		return nil, reject(field+".payload", "must be an object")
	}
	if _, ok := finiteNumber(payload["price"]); !ok {
		return nil, reject(field+".payload.price", "must be a finite number")
	}
	if s, ok := payload["source"].(string); !ok || s == "" {
		return nil, reject(field+".payload.source", "must be a string")
	}
	rec.Payload = payload
	return rec, nil
}

func prefix(field string, err error) error {
	if re, ok := err.(*RejectError); ok {
		return reject(field+"."+re.Field, re.Reason)
	}
	return err
}
