package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/efddrsn/cartorio-AI/constants"
	"github.com/efddrsn/cartorio-AI/internal/common"
	"github.com/efddrsn/cartorio-AI/internal/entity"
)

const jobTable = "extraction_job"

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z"

var jobColumns = []string{
	"id", "file_name", "status", "pages", "ocr_text", "extracted_json",
	"model_name", "error_kind", "error_message", "started_at", "finished_at",
}

type ExtractionJobRepository interface {
	Start(ctx context.Context, fileName string) (*entity.ExtractionJob, error)
	MarkOCR(ctx context.Context, jobID uuid.UUID, pages int, ocrText string) error
	MarkSucceeded(ctx context.Context, jobID uuid.UUID, modelName string, extracted json.RawMessage) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, kind, message string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractionJob, error)
	List(ctx context.Context, limit int) ([]*entity.ExtractionJob, error)
}

type extractionJobRepo struct {
	db  *DB
	b   *entsql.DialectBuilder
	now func() time.Time
	log *slog.Logger
}

func NewExtractionJobRepository(db *DB, log *slog.Logger) ExtractionJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractionJobRepo{db: db, b: entsql.Dialect(db.Dialect), now: time.Now, log: log}
}

func (r *extractionJobRepo) stamp() string {
	return r.now().UTC().Format(timeLayout)
}

func (r *extractionJobRepo) Start(ctx context.Context, fileName string) (*entity.ExtractionJob, error) {
	now := r.now().UTC()
	job := &entity.ExtractionJob{
		ID:        uuid.New(),
		FileName:  fileName,
		Status:    constants.JobStatusRunning,
		StartedAt: now.Truncate(time.Microsecond),
	}
	q, args := r.b.Insert(jobTable).
		Columns("id", "file_name", "status", "pages", "started_at").
		Values(job.ID.String(), fileName, string(job.Status), 0, now.Format(timeLayout)).
		Query()
	if err := r.db.Driver.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("extraction_job start failed", "file", fileName, "err", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Info("extraction_job started", "job_id", job.ID, "file", fileName)
	return job, nil
}

func (r *extractionJobRepo) MarkOCR(ctx context.Context, jobID uuid.UUID, pages int, ocrText string) error {
	u := r.b.Update(jobTable).
		Set("status", string(constants.JobStatusOCROK)).
		Set("pages", pages).
		Set("ocr_text", ocrText)
	if err := r.update(ctx, jobID, u); err != nil {
		r.log.Error("extraction_job finish(OCR_OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extraction_job updated (OCR_OK)", "job_id", jobID, "pages", pages)
	return nil
}

func (r *extractionJobRepo) MarkSucceeded(ctx context.Context, jobID uuid.UUID, modelName string, extracted json.RawMessage) error {
	u := r.b.Update(jobTable).
		Set("status", string(constants.JobStatusLLMOK)).
		Set("model_name", modelName).
		Set("extracted_json", string(extracted)).
		Set("finished_at", r.stamp())
	if err := r.update(ctx, jobID, u); err != nil {
		r.log.Error("extraction_job finish(LLM_OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extraction_job finished (LLM_OK)", "job_id", jobID, "model", modelName)
	return nil
}

func (r *extractionJobRepo) MarkFailed(ctx context.Context, jobID uuid.UUID, kind, message string) error {
	u := r.b.Update(jobTable).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_kind", kind).
		Set("error_message", message).
		Set("finished_at", r.stamp())
	if err := r.update(ctx, jobID, u); err != nil {
		r.log.Error("extraction_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Warn("extraction_job finished (FAILED)", "job_id", jobID, "kind", kind, "error", message)
	return nil
}

func (r *extractionJobRepo) update(ctx context.Context, jobID uuid.UUID, u *entsql.UpdateBuilder) error {
	q, args := u.Where(entsql.EQ("id", jobID.String())).Query()
	var res sql.Result
	if err := r.db.Driver.Exec(ctx, q, args, &res); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}
	return nil
}

func (r *extractionJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractionJob, error) {
	q, args := r.b.Select(jobColumns...).
		From(entsql.Table(jobTable)).
		Where(entsql.EQ("id", jobID.String())).
		Query()
	jobs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}
	return jobs[0], nil
}

// List returns the most recent jobs first; limit <= 0 means no limit.
func (r *extractionJobRepo) List(ctx context.Context, limit int) ([]*entity.ExtractionJob, error) {
	s := r.b.Select(jobColumns...).
		From(entsql.Table(jobTable)).
		OrderBy(entsql.Desc("started_at"), entsql.Desc("id"))
	if limit > 0 {
		s.Limit(limit)
	}
	q, args := s.Query()
	return r.query(ctx, q, args)
}

func (r *extractionJobRepo) query(ctx context.Context, q string, args []any) ([]*entity.ExtractionJob, error) {
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.ExtractionJob
	for rows.Next() {
		job, err := scanJob(&rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func scanJob(rows *entsql.Rows) (*entity.ExtractionJob, error) {
	var (
		id, fileName, status, startedAt                      string
		pages                                                int64
		ocrText, extracted, model, errKind, errMsg, finished sql.NullString
	)
	if err := rows.Scan(&id, &fileName, &status, &pages, &ocrText, &extracted, &model, &errKind, &errMsg, &startedAt, &finished); err != nil {
		return nil, err
	}
	jobID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	started, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	job := &entity.ExtractionJob{
		ID:           jobID,
		FileName:     fileName,
		Status:       constants.JobStatus(status),
		Pages:        int(pages),
		OCRText:      nullable(ocrText),
		ModelName:    nullable(model),
		ErrorKind:    nullable(errKind),
		ErrorMessage: nullable(errMsg),
		StartedAt:    started,
	}
	if extracted.Valid && extracted.String != "" {
		job.ExtractedJSON = json.RawMessage(extracted.String)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at %q: %w", finished.String, err)
		}
		job.FinishedAt = &t
	}
	return job, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// IsNotFound reports whether err means the job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
