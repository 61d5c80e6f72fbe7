package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/resource-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/resource-engine/pkg/apperrors"
	"github.com/ekaya-inc/resource-engine/pkg/definitions"
	"github.com/ekaya-inc/resource-engine/pkg/logging"
	"github.com/ekaya-inc/resource-engine/pkg/models"
	"github.com/ekaya-inc/resource-engine/pkg/serializer"
	sqlgen "github.com/ekaya-inc/resource-engine/pkg/sql"
	"github.com/ekaya-inc/resource-engine/pkg/triggers"
)

// ResourceService executes reads and writes against named resources.
type ResourceService interface {
	// ReadCollection returns the records of a read, nested for hierarchical resources.
	ReadCollection(ctx context.Context, req *models.Request) ([]map[string]any, error)

	// ReadDocument returns the records of a read serialized as a document.
	ReadDocument(ctx context.Context, req *models.Request) (*Document, error)

	// Write executes an insert, update or delete and returns the rows affected
	// across every statement of the cascade.
	Write(ctx context.Context, req *models.Request) (int64, error)
}

// Document is a serialized read result.
type Document struct {
	Format          string
	ContentType     string
	ContentEncoding string
	Body            []byte
}

// ResourceServiceOptions tunes engine behavior.
type ResourceServiceOptions struct {
	// CascadeScopedDeletes deletes the children of the identified parents
	// before the parents. By default only unscoped hierarchical deletes cascade.
	CascadeScopedDeletes bool
}

type resourceService struct {
	resources   definitions.ResourceSource
	builder     sqlgen.Builder
	triggers    triggers.Runner
	serializer  serializer.Serializer
	connections datasource.Provider
	opts        ResourceServiceOptions
	logger      *zap.Logger
}

// NewResourceService creates the execution engine from its collaborators.
func NewResourceService(
	resources definitions.ResourceSource,
	builder sqlgen.Builder,
	triggerRunner triggers.Runner,
	docSerializer serializer.Serializer,
	connections datasource.Provider,
	opts ResourceServiceOptions,
	logger *zap.Logger,
) ResourceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &resourceService{
		resources:   resources,
		builder:     builder,
		triggers:    triggerRunner,
		serializer:  docSerializer,
		connections: connections,
		opts:        opts,
		logger:      logger.Named("engine"),
	}
}

func (s *resourceService) ReadCollection(ctx context.Context, req *models.Request) ([]map[string]any, error) {
	res, err := s.resources.Get(req.ResourceName)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, res, req, nil)
}

func (s *resourceService) ReadDocument(ctx context.Context, req *models.Request) (*Document, error) {
	if s.serializer == nil {
		return nil, fmt.Errorf("no document serializer configured")
	}
	res, err := s.resources.Get(req.ResourceName)
	if err != nil {
		return nil, err
	}

	var body []byte
	_, err = s.read(ctx, res, req, func(records []map[string]any) error {
		var serr error
		body, serr = s.serializer.Serialize(res, records)
		if serr != nil {
			return fmt.Errorf("failed to serialize %s: %w", res.Name(), serr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Format:      s.serializer.Format(),
		ContentType: s.serializer.ContentType(),
		Body:        body,
	}
	if enc, ok := s.serializer.(interface{ ContentEncoding() string }); ok {
		doc.ContentEncoding = enc.ContentEncoding()
	}
	return doc, nil
}

// read runs before-triggers, the select on its own connection, the optional
// serialize step and then after-triggers. The connection is released before
// after-triggers fire. An after-trigger failure discards the results.
func (s *resourceService) read(ctx context.Context, res *models.Resource, req *models.Request, serialize func([]map[string]any) error) ([]map[string]any, error) {
	if req.Type.IsWrite() {
		return nil, fmt.Errorf("%w: %s is not a read operation", apperrors.ErrInvalidRequest, req.Type)
	}
	if err := s.runTriggers(ctx, res, req, true); err != nil {
		return nil, err
	}

	records, err := s.query(ctx, res, req)
	if err != nil {
		return nil, err
	}
	if serialize != nil {
		if err := serialize(records); err != nil {
			return nil, err
		}
	}

	if err := s.runTriggers(ctx, res, req, false); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *resourceService) query(ctx context.Context, res *models.Resource, req *models.Request) ([]map[string]any, error) {
	meta := res.MetaData()
	statement, err := s.builder.BuildSelect(meta, res.Definition().Query, req.ResourceIdentifiers, req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to build select for %s: %w", res.Name(), err)
	}

	conn, err := s.acquire(ctx, meta.Database)
	if err != nil {
		return nil, err
	}
	defer s.release(conn, meta.Database)

	s.logStatement(res, req, statement)
	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, &apperrors.ExecutionError{Statement: statement, Err: err}
	}
	defer rows.Close()

	records, err := NewAssembler(meta).Assemble(rows)
	if err != nil {
		return nil, &apperrors.ExecutionError{Statement: statement, Err: err}
	}

	s.logger.Debug("Read completed",
		zap.String("resource", res.Name()),
		zap.String("request_id", req.ID.String()),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func (s *resourceService) runTriggers(ctx context.Context, res *models.Resource, req *models.Request, before bool) error {
	if s.triggers == nil {
		return nil
	}
	return s.triggers.Run(ctx, res.Name(), req, before)
}

func (s *resourceService) acquire(ctx context.Context, database string) (datasource.Conn, error) {
	conn, err := s.connections.Acquire(ctx, database)
	if err != nil {
		return nil, &apperrors.ExecutionError{Err: err}
	}
	return conn, nil
}

// release returns conn to its pool. Failures are logged, never returned.
func (s *resourceService) release(conn datasource.Conn, database string) {
	if err := conn.Close(); err != nil {
		s.logger.Warn("Failed to release connection",
			zap.String("database", database),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
}

func (s *resourceService) logStatement(res *models.Resource, req *models.Request, statement string) {
	req.Logger().AddSQL(statement)
	s.logger.Debug("Executing statement",
		zap.String("resource", res.Name()),
		zap.String("request_id", req.ID.String()),
		zap.String("sql", logging.SanitizeQuery(statement)),
	)
}
