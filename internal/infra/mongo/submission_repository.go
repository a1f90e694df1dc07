package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
	"quiz-intake-service/internal/domain"
)

// Collection is where submissions live.
const Collection = "students"

type submissionDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Contact   string             `bson:"contact,omitempty"`
	Hometown  string             `bson:"hometown,omitempty"`
	Gender    string             `bson:"gender,omitempty"`
	Campus    string             `bson:"campus,omitempty"`
	Branch    string             `bson:"branch,omitempty"`
	Answers   []domain.Answer    `bson:"answers,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// ClientOptions mirror the pool and timeout knobs of the store configuration.
type ClientOptions struct {
	PoolSize               int
	ServerSelectionTimeout time.Duration
	SocketTimeout          time.Duration
}

// NewClient configures a pooled client. The driver connects in the background,
// so this succeeds even when the server is down.
func NewClient(ctx context.Context, uri string, opts ClientOptions) (*mongo.Client, error) {
	co := options.Client().ApplyURI(uri)
	if opts.PoolSize > 0 {
		co.SetMaxPoolSize(uint64(opts.PoolSize))
	}
	if opts.ServerSelectionTimeout > 0 {
		co.SetServerSelectionTimeout(opts.ServerSelectionTimeout)
	}
	if opts.SocketTimeout > 0 {
		co.SetSocketTimeout(opts.SocketTimeout)
	}
	return mongo.Connect(ctx, co)
}

// SubmissionRepository stores one document per submission with embedded answers.
type SubmissionRepository struct {
	coll *mongo.Collection
}

func NewSubmissionRepository(db *mongo.Database) *SubmissionRepository {
	return &SubmissionRepository{coll: db.Collection(Collection)}
}

// EnsureIndexes creates the listing index; callers log failures and carry on.
func (r *SubmissionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "campus", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return classify("create indexes", err)
	}
	return nil
}

func (r *SubmissionRepository) Insert(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	doc := submissionDoc{
		ID:        primitive.NewObjectID(),
		Name:      sub.Name,
		Email:     sub.Email,
		Contact:   sub.Contact,
		Hometown:  sub.Hometown,
		Gender:    sub.Gender,
		Campus:    sub.Campus,
		Branch:    sub.Branch,
		Answers:   sub.Answers,
		CreatedAt: sub.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return domain.Submission{}, classify("insert submission", err)
	}
	return fromDoc(doc), nil
}

func (r *SubmissionRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.SubmissionSummary, error) {
	docs, err := r.find(ctx, filter, bson.M{"answers": 0})
	if err != nil {
		return nil, err
	}
	out := make([]domain.SubmissionSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d).Summary())
	}
	return out, nil
}

func (r *SubmissionRepository) ListFull(ctx context.Context, filter domain.ListFilter) ([]domain.Submission, error) {
	docs, err := r.find(ctx, filter, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Submission, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDoc(d))
	}
	return out, nil
}

func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (domain.Submission, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// Malformed ids cannot exist.
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	var doc submissionDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return domain.Submission{}, classify("find submission", err)
	}
	return fromDoc(doc), nil
}

func (r *SubmissionRepository) find(ctx context.Context, filter domain.ListFilter, projection any) ([]submissionDoc, error) {
	query := bson.M{}
	if filter.Campus != "" {
		query["campus"] = filter.Campus
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if projection != nil {
		opts.SetProjection(projection)
	}
	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, classify("list submissions", err)
	}
	docs := make([]submissionDoc, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify("decode submissions", err)
	}
	return docs, nil
}

func fromDoc(d submissionDoc) domain.Submission {
	answers := d.Answers
	if answers == nil {
		answers = []domain.Answer{}
	}
	return domain.Submission{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Email:     d.Email,
		Contact:   d.Contact,
		Hometown:  d.Hometown,
		Gender:    d.Gender,
		Campus:    d.Campus,
		Branch:    d.Branch,
		Answers:   answers,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func classify(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrSubmissionNotFound
	}
	var selErr topology.ServerSelectionError
	if errors.As(err, &selErr) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConnection, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}
