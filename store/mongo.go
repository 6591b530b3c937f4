package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"civicsync-admin/logging"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Reserved document fields managed by the Mongo backend.
const (
	mongoIDField      = "_id"
	mongoVersionField = "_rev"
)

// Mongo maps the path tree onto a MongoDB database: the first segment names the collection,
// the second the document _id and deeper segments are dotted fields inside the document.
// Every document carries a _rev counter used for compare-and-swap writes.
//
// Subscriptions use change streams and therefore need a replica set or sharded cluster.
type Mongo struct {
	db         *mongo.Database
	logger     logging.Logger
	maxRetries int
}

var _ Store = (*Mongo)(nil)

// NewMongo creates a Mongo-backed store.
func NewMongo(db *mongo.Database, logger logging.Logger) *Mongo {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Mongo{db: db, logger: logger, maxRetries: DefaultMaxRetries}
}

func (m *Mongo) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	clean := strings.Join(segs, "/")
	coll := m.db.Collection(segs[0])

	if len(segs) == 1 {
		cursor, err := coll.Find(ctx, bson.M{})
		if err != nil {
			return Snapshot{}, Unavailable(string(OpGet), path, err)
		}
		defer cursor.Close(ctx)

		var docs []bson.M
		if err := cursor.All(ctx, &docs); err != nil {
			return Snapshot{}, Unavailable(string(OpGet), path, err)
		}

		children := make(map[string]any, len(docs))
		var version uint64
		for _, doc := range docs {
			id, rev, body := splitDocument(doc)
			version = max(version, rev)
			if body != nil {
				children[id] = body
			}
		}

		snap := Snapshot{Path: clean, Version: version}
		if len(children) > 0 {
			snap.Value = children
		}
		return snap, nil
	}

	doc, err := m.findRecord(ctx, coll, segs[1])
	if err != nil {
		return Snapshot{}, Unavailable(string(OpGet), path, err)
	}
	if doc == nil {
		return Snapshot{Path: clean}, nil
	}

	_, rev, body := splitDocument(doc)

	return Snapshot{Path: clean, Value: ValueAt(body, segs[2:]), Version: rev}, nil
}

func (m *Mongo) Set(ctx context.Context, path string, value any) error {
	normalized, err := Normalize(value)
	if err != nil {
		return err
	}
	_, err = m.Transact(ctx, path, func(any) (any, error) {
		return normalized, nil
	})

	return err
}

func (m *Mongo) Update(ctx context.Context, path string, fields map[string]any) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	if len(segs) < 2 {
		return fmt.Errorf("%w: updates must address a record: %q", ErrInvalidPath, path)
	}

	set := bson.M{}
	unset := bson.M{}
	for name, raw := range fields {
		fieldSegs, err := SplitPath(name)
		if err != nil {
			return err
		}
		value, err := Normalize(raw)
		if err != nil {
			return err
		}
		field := FieldPath(append(append([]string{}, segs[2:]...), fieldSegs...)...)
		if value == nil {
			unset[field] = ""
		} else {
			set[field] = value
		}
	}

	update := bson.M{"$inc": bson.M{mongoVersionField: 1}}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	_, err = m.db.Collection(segs[0]).UpdateOne(ctx,
		bson.M{mongoIDField: segs[1]},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return Unavailable(string(OpUpdate), path, err)
	}

	return nil
}

func (m *Mongo) Transact(ctx context.Context, path string, fn TxnFunc) (Snapshot, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if len(segs) < 2 {
		return Snapshot{}, fmt.Errorf("%w: transactions must address a record: %q", ErrInvalidPath, path)
	}
	clean := strings.Join(segs, "/")
	coll := m.db.Collection(segs[0])
	id := segs[1]

	for attempt := 0; attempt < m.maxRetries; attempt++ {
		doc, err := m.findRecord(ctx, coll, id)
		if err != nil {
			return Snapshot{}, Unavailable(string(OpTransact), path, err)
		}

		var (
			rev  uint64
			body any
		)
		if doc != nil {
			_, rev, body = splitDocument(doc)
		}

		next, err := fn(Clone(ValueAt(body, segs[2:])))
		if err != nil {
			return Snapshot{}, err
		}
		normalized, err := Normalize(next)
		if err != nil {
			return Snapshot{}, err
		}

		newBody := ReplaceAt(body, segs[2:], Clone(normalized))
		if newBody != nil {
			if _, ok := newBody.(map[string]any); !ok {
				return Snapshot{}, fmt.Errorf("%w: record %q must be an object", ErrInvalidValue, path)
			}
		}

		ok, err := m.swap(ctx, coll, id, doc != nil, rev, newBody)
		if err != nil {
			return Snapshot{}, Unavailable(string(OpTransact), path, err)
		}
		if ok {
			return Snapshot{Path: clean, Value: normalized, Version: rev + 1}, nil
		}

		m.logger.Debug("mongo transaction lost race, retrying", "path", path, "attempt", attempt+1, "rev", rev)
	}

	return Snapshot{}, fmt.Errorf("%w: %s after %d attempts", ErrConflict, path, m.maxRetries)
}

// swap writes newBody if the document still carries rev. It reports false when another
// writer got there first.
func (m *Mongo) swap(ctx context.Context, coll *mongo.Collection, id string, existed bool, rev uint64, newBody any) (bool, error) {
	if !existed {
		if newBody == nil {
			return true, nil
		}
		doc := bson.M{mongoIDField: id, mongoVersionField: int64(1)}
		for k, v := range newBody.(map[string]any) {
			doc[k] = v
		}
		_, err := coll.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return err == nil, err
	}

	filter := bson.M{mongoIDField: id, mongoVersionField: int64(rev)}
	if rev == 0 {
		filter = bson.M{mongoIDField: id, mongoVersionField: bson.M{"$exists": false}}
	}

	if newBody == nil {
		res, err := coll.DeleteOne(ctx, filter)
		if err != nil {
			return false, err
		}
		return res.DeletedCount == 1, nil
	}

	replacement := bson.M{mongoVersionField: int64(rev + 1)}
	for k, v := range newBody.(map[string]any) {
		replacement[k] = v
	}
	res, err := coll.ReplaceOne(ctx, filter, replacement)
	if err != nil {
		return false, err
	}

	return res.MatchedCount == 1, nil
}

func (m *Mongo) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{}
	if len(segs) >= 2 {
		pipeline = mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: segs[1]}}}}}
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := m.db.Collection(segs[0]).Watch(subCtx, pipeline)
	if err != nil {
		cancel()
		return nil, Unavailable(string(OpSubscribe), path, err)
	}

	initial, err := m.Get(subCtx, path)
	if err != nil {
		cancel()
		_ = stream.Close(context.Background())
		return nil, err
	}
	fn(initial)

	sub := &cancelSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer stream.Close(context.Background())

		for stream.Next(subCtx) {
			snap, err := m.Get(subCtx, path)
			if err != nil {
				m.logger.Warn("mongo subscription refresh failed", "path", path, "error", err)
				continue
			}
			fn(snap)
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil {
			m.logger.Error("mongo change stream ended", "path", path, "error", err)
		}
	}()

	return sub, nil
}

func (m *Mongo) findRecord(ctx context.Context, coll *mongo.Collection, id string) (bson.M, error) {
	var doc bson.M
	err := coll.FindOne(ctx, bson.M{mongoIDField: id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// splitDocument separates the backend fields from the stored record.
func splitDocument(doc bson.M) (string, uint64, any) {
	id := fmt.Sprint(fromBSON(doc[mongoIDField]))
	var rev uint64
	if f, ok := fromBSON(doc[mongoVersionField]).(float64); ok && f > 0 {
		rev = uint64(f)
	}

	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == mongoIDField || k == mongoVersionField {
			continue
		}
		body[k] = fromBSON(v)
	}
	if len(body) == 0 {
		return id, rev, nil
	}

	return id, rev, body
}

// fromBSON converts decoded BSON values into the JSON-like representation.
func fromBSON(v any) any {
	switch val := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = fromBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = fromBSON(item)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBSON(item)
		}
		return out
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case int:
		return float64(val)
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case primitive.ObjectID:
		return val.Hex()
	default:
		return val
	}
}

// cancelSubscription stops a goroutine-backed subscription.
type cancelSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *cancelSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
