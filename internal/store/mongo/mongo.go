// Package mongo stores the fee ledger in MongoDB. Each student is one
// document with ledgers nested under fees.<session>.<month>; unique indexes
// back the identifier rules.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/store"
)

const queryTimeout = 10 * time.Second

type Store struct {
	client   *mongo.Client
	students *mongo.Collection
	parents  *mongo.Collection
	counters *mongo.Collection
}

var _ store.Store = (*Store)(nil)

// New connects to uri, selects database and makes sure the indexes exist.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	db := client.Database(database)
	s := &Store{
		client:   client,
		students: db.Collection("students"),
		parents:  db.Collection("parents"),
		counters: db.Collection("counters"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	slog.InfoContext(ctx, "MongoDB store ready", "database", database)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.students.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "regNo", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "regSeq", Value: -1}}},
		{
			Keys:    bson.D{{Key: "className", Value: 1}, {Key: "session", Value: 1}, {Key: "rollNumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create student indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) MaxRegistrationNumber(ctx context.Context) (int64, bool, error) {
	var d store.StudentDocument
	err := s.students.FindOne(ctx,
		bson.M{"regSeq": bson.M{"$type": "long"}},
		options.FindOne().SetSort(bson.D{{Key: "regSeq", Value: -1}}).SetProjection(bson.M{"regSeq": 1}),
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query max registration number: %w", err)
	}
	if d.RegistrationSeq == nil {
		return 0, false, nil
	}
	return *d.RegistrationSeq, true, nil
}

func (s *Store) RollNumbers(ctx context.Context, className, session string) ([]string, error) {
	cur, err := s.students.Find(ctx,
		bson.M{"className": className, "session": session},
		options.Find().SetProjection(bson.M{"rollNumber": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("query roll numbers: %w", err)
	}
	defer cur.Close(ctx)
	var rolls []string
	for cur.Next(ctx) {
		var d struct {
			RollNumber string `bson:"rollNumber"`
		}
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode roll number: %w", err)
		}
		rolls = append(rolls, d.RollNumber)
	}
	return rolls, cur.Err()
}

func (s *Store) Get(ctx context.Context, id string) (core.Student, error) {
	var d store.StudentDocument
	err := s.students.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Student{}, core.ErrStudentNotFound
	}
	if err != nil {
		return core.Student{}, fmt.Errorf("get student %s: %w", id, err)
	}
	return d.Student()
}

func (s *Store) List(ctx context.Context, f core.Filter) ([]core.Student, error) {
	filter := bson.M{}
	if !f.IncludeDeleted {
		filter["deletedAt"] = nil
	}
	if f.Session != "" {
		filter["session"] = f.Session
	}
	if f.ClassName != "" {
		filter["className"] = f.ClassName
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
		filter["$or"] = bson.A{bson.M{"name": pattern}, bson.M{"regNo": pattern}, bson.M{"rollNumber": pattern}}
	}
	cur, err := s.students.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer cur.Close(ctx)
	var out []core.Student
	for cur.Next(ctx) {
		var d store.StudentDocument
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode student: %w", err)
		}
		st, err := d.Student()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return core.SortByRoll(out), nil
}

func (s *Store) Create(ctx context.Context, st core.Student) error {
	_, err := s.students.InsertOne(ctx, store.NewStudentDocument(st))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert student %s: %w", st.RegistrationNumber, core.ErrDuplicateNumber)
	}
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	slog.InfoContext(ctx, "Student saved to MongoDB", log.NewFields().
		WithComponent(log.ComponentStorage).
		WithOperation(log.OpCreate).
		WithStudent(st.ID, st.RegistrationNumber, st.RollNumber, st.ClassName).
		ToSlice()...)
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, st core.Student) error {
	subjects := st.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	res, err := s.students.UpdateOne(ctx, bson.M{"_id": st.ID}, bson.M{"$set": bson.M{
		"name":               st.Name,
		"className":          st.ClassName,
		"parentId":           st.ParentID,
		"fatherName":         st.FatherName,
		"motherName":         st.MotherName,
		"phone":              st.Phone,
		"address":            st.Address,
		"aadhaar":            st.Aadhaar,
		"gender":             st.Gender,
		"category":           st.Category,
		"dob":                st.DOB,
		"admissionDate":      st.AdmissionDate,
		"subjects":           subjects,
		"isTransferStudent":  st.IsTransferStudent,
		"pnrNumber":          st.PNRNumber,
		"admissionFeesPaise": st.AdmissionFee.Paise,
		"totalFeesPaise":     st.TuitionRate.Paise,
		"isTransportEnabled": st.IsBusStudent,
		"busFeesPaise":       st.BusRate.Paise,
	}})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("update student %s: %w", st.ID, core.ErrDuplicateNumber)
	}
	if err != nil {
		return fmt.Errorf("update student %s: %w", st.ID, err)
	}
	if res.MatchedCount == 0 {
		return core.ErrStudentNotFound
	}
	return nil
}

func (s *Store) AddSession(ctx context.Context, id string, r store.Readmission) error {
	path := "fees." + r.Session
	res, err := s.students.UpdateOne(ctx,
		bson.M{"_id": id, path: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{
			"className":          r.ClassName,
			"session":            r.Session,
			"rollNumber":         r.RollNumber,
			"totalFeesPaise":     r.TuitionRate.Paise,
			"isTransportEnabled": r.IsBusStudent,
			"busFeesPaise":       r.BusRate.Paise,
			"creditSchoolPaise":  r.Credit.School.Paise,
			"creditBusPaise":     r.Credit.Bus.Paise,
			path:                 store.NewLedgerDocument(r.Ledger),
		}},
	)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("readmit %s: %w", id, core.ErrDuplicateNumber)
	}
	if err != nil {
		return fmt.Errorf("readmit %s: %w", id, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return core.ErrSessionExists
}

// SetMonthFee writes fees.<session>.<month> only.
func (s *Store) SetMonthFee(ctx context.Context, id, session string, month core.Month, fee core.MonthlyFee) error {
	res, err := s.students.UpdateOne(ctx,
		bson.M{"_id": id, "fees." + session: bson.M{"$exists": true}},
		bson.M{"$set": bson.M{"fees." + session + "." + month.String(): store.NewMonthDocument(fee)}},
	)
	if err != nil {
		return fmt.Errorf("update fee month %s %s: %w", session, month, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if err := s.exists(ctx, id); err != nil {
		return err
	}
	return core.ErrSessionNotFound
}

func (s *Store) exists(ctx context.Context, id string) error {
	n, err := s.students.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check student %s: %w", id, err)
	}
	if n == 0 {
		return core.ErrStudentNotFound
	}
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := s.students.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"deletedAt": at}})
	if err != nil {
		return fmt.Errorf("delete student %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return core.ErrStudentNotFound
	}
	return nil
}

func (s *Store) CreateParent(ctx context.Context, p core.Parent) error {
	_, err := s.parents.InsertOne(ctx, store.NewParentDocument(p))
	if mongo.IsDuplicateKeyError(err) {
		return core.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	return nil
}

func (s *Store) GetParent(ctx context.Context, id string) (core.Parent, error) {
	var d store.ParentDocument
	err := s.parents.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Parent{}, core.ErrParentNotFound
	}
	if err != nil {
		return core.Parent{}, fmt.Errorf("get parent %s: %w", id, err)
	}
	return d.Parent(), nil
}

func (s *Store) ListParents(ctx context.Context, search string) ([]core.Parent, error) {
	filter := bson.M{}
	if q := strings.TrimSpace(search); q != "" {
		filter["fatherName"] = bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
	}
	cur, err := s.parents.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "fatherName", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	defer cur.Close(ctx)
	var docs []store.ParentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode parents: %w", err)
	}
	out := make([]core.Parent, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Parent())
	}
	return out, nil
}

func (s *Store) LinkStudent(ctx context.Context, parentID, studentID string) error {
	res, err := s.parents.UpdateOne(ctx, bson.M{"_id": parentID},
		bson.M{"$addToSet": bson.M{"students": studentID}})
	if err != nil {
		return fmt.Errorf("link student %s to parent %s: %w", studentID, parentID, err)
	}
	if res.MatchedCount == 0 {
		return core.ErrParentNotFound
	}
	return nil
}

// Next raises the counter with a single pipeline update so concurrent
// callers never observe the same value.
func (s *Store) Next(ctx context.Context, key string, floor int64) (int64, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "value", Value: bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$max", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$value", int64(0)}}}, floor}}},
			int64(1),
		}}}}}}},
	}
	var out struct {
		Value int64 `bson:"value"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": store.CounterDocumentID(key)},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("advance counter %s: %w", key, err)
	}
	return out.Value, nil
}

func (s *Store) Release(ctx context.Context, key string, n int64) (bool, error) {
	res, err := s.counters.UpdateOne(ctx,
		bson.M{"_id": store.CounterDocumentID(key), "value": n},
		bson.M{"$inc": bson.M{"value": int64(-1)}})
	if err != nil {
		return false, fmt.Errorf("release counter %s: %w", key, err)
	}
	return res.ModifiedCount == 1, nil
}
