package mongodb

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// document is the stored form of one version row.
type document struct {
	Key           string    `bson:"_id"`
	ID            string    `bson:"id"`
	AppID         string    `bson:"ai"`
	SchemaID      string    `bson:"si"`
	Version       int64     `bson:"vs"`
	Status        string    `bson:"st"`
	IsLatest      bool      `bson:"il"`
	LastModified  time.Time `bson:"mt"`
	ReferencedIDs []string  `bson:"rf"`
	Data          bson.D    `bson:"do"`
	DataText      string    `bson:"dt"`
}

// documentKey identifies a version row across apps.
func documentKey(appID, id uuid.UUID, version int64) string {
	return fmt.Sprintf("%s--%s--%d", appID, id, version)
}

func toDocument(row *schemacontent.Row) *document {
	refs := make([]string, len(row.ReferencedIDs))
	for i, id := range row.ReferencedIDs {
		refs[i] = id.String()
	}

	data := make(bson.D, 0, len(row.Data))
	for _, f := range row.Data {
		partitions := make(bson.D, 0, len(f.Partitions))
		for _, p := range f.Partitions {
			partitions = append(partitions, bson.E{Key: p.Key, Value: p.Value})
		}
		data = append(data, bson.E{Key: f.Name, Value: partitions})
	}

	return &document{
		Key:           documentKey(row.AppID, row.ID, row.Version),
		ID:            row.ID.String(),
		AppID:         row.AppID.String(),
		SchemaID:      row.SchemaID.String(),
		Version:       row.Version,
		Status:        string(row.Status),
		IsLatest:      row.IsLatest,
		LastModified:  row.LastModified.UTC(),
		ReferencedIDs: refs,
		Data:          data,
		DataText:      row.DataText,
	}
}

func fromDocument(doc *document) (*schemacontent.Row, error) {
	var (
		row schemacontent.Row
		err error
	)
	if row.ID, err = uuid.Parse(doc.ID); err != nil {
		return nil, errors.Wrapf(err, "document %s: id", doc.Key)
	}
	if row.AppID, err = uuid.Parse(doc.AppID); err != nil {
		return nil, errors.Wrapf(err, "document %s: app id", doc.Key)
	}
	if row.SchemaID, err = uuid.Parse(doc.SchemaID); err != nil {
		return nil, errors.Wrapf(err, "document %s: schema id", doc.Key)
	}
	for _, ref := range doc.ReferencedIDs {
		id, err := uuid.Parse(ref)
		if err != nil {
			return nil, errors.Wrapf(err, "document %s: referenced id", doc.Key)
		}
		row.ReferencedIDs = append(row.ReferencedIDs, id)
	}

	row.Version = doc.Version
	row.Status = schemacontent.Status(doc.Status)
	row.IsLatest = doc.IsLatest
	row.LastModified = doc.LastModified.UTC()
	row.DataText = doc.DataText

	for _, f := range doc.Data {
		field := schemacontent.RawField{Name: f.Key}
		partitions, ok := f.Value.(bson.D)
		if !ok {
			// Not a partition map; keep it visible as drift.
			field.Partitions = []schemacontent.RawPartition{{Value: fromBSON(f.Value)}}
		}
		for _, p := range partitions {
			field.Partitions = append(field.Partitions, schemacontent.RawPartition{Key: p.Key, Value: fromBSON(p.Value)})
		}
		row.Data = append(row.Data, field)
	}
	return &row, nil
}

// fromBSON converts decoded values into plain Go values. Integers become
// float64 like every other stored number.
func fromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = fromBSON(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = fromBSON(e)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = fromBSON(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case primitive.DateTime:
		return t.Time().UTC().Format(schemacontent.DateTimeFormat)
	case primitive.Null, primitive.Undefined:
		return nil
	}
	return v
}
