package trigger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// StorageEvent is an object-finalized notification from a bucket.
type StorageEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Bucket  string `json:"bucket"`
	Name    string `json:"name"`
	Updated string `json:"updated"`
}

type objectData struct {
	Bucket  string `json:"bucket"`
	Name    string `json:"name"`
	Updated string `json:"updated"`
}

type structuredEvent struct {
	SpecVersion string          `json:"specversion"`
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Source      string          `json:"source"`
	Data        json.RawMessage `json:"data"`
	DataBase64  string          `json:"data_base64"`
}

const maxEventBytes = 1 << 20

// ParseCloudEvent reads a CloudEvents HTTP request in binary mode (ce-*
// headers, object JSON body) or structured mode (application/cloudevents+json).
func ParseCloudEvent(r *http.Request) (StorageEvent, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		return StorageEvent{}, fmt.Errorf("read event: %w", err)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.EqualFold(mediaType, "application/cloudevents+json") {
		return parseStructured(body)
	}
	if r.Header.Get("Ce-Id") == "" && r.Header.Get("Ce-Type") == "" {
		return StorageEvent{}, fmt.Errorf("not a cloudevent: missing ce-id and ce-type headers")
	}
	ev := StorageEvent{ID: r.Header.Get("Ce-Id"), Type: r.Header.Get("Ce-Type")}
	if err := decodeObject(body, &ev); err != nil {
		return StorageEvent{}, err
	}
	return ev, nil
}

func parseStructured(body []byte) (StorageEvent, error) {
	var se structuredEvent
	if err := json.Unmarshal(body, &se); err != nil {
		return StorageEvent{}, fmt.Errorf("decode structured event: %w", err)
	}
	ev := StorageEvent{ID: se.ID, Type: se.Type}
	data := []byte(se.Data)
	if len(data) == 0 && se.DataBase64 != "" {
		b, err := base64.StdEncoding.DecodeString(se.DataBase64)
		if err != nil {
			return StorageEvent{}, fmt.Errorf("decode data_base64: %w", err)
		}
		data = b
	}
	if err := decodeObject(data, &ev); err != nil {
		return StorageEvent{}, err
	}
	return ev, nil
}

func decodeObject(data []byte, ev *StorageEvent) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var obj objectData
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode object data: %w", err)
	}
	ev.Bucket = obj.Bucket
	ev.Name = obj.Name
	ev.Updated = obj.Updated
	return nil
}
