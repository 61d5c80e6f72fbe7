package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/resource-engine/pkg/apperrors"
	"github.com/ekaya-inc/resource-engine/pkg/logging"
	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// execer is satisfied by *sql.Tx and *sql.Conn.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Write runs the statements of one logical write in a single transaction on
// one connection. After-triggers fire before commit, so a failing trigger
// rolls the write back.
func (s *resourceService) Write(ctx context.Context, req *models.Request) (int64, error) {
	if !req.Type.IsWrite() {
		return 0, fmt.Errorf("%w: %s is not a write operation", apperrors.ErrInvalidRequest, req.Type)
	}
	res, err := s.resources.Get(req.ResourceName)
	if err != nil {
		return 0, err
	}
	if err := s.runTriggers(ctx, res, req, true); err != nil {
		return 0, err
	}

	database := res.MetaData().Database
	conn, err := s.acquire(ctx, database)
	if err != nil {
		return 0, err
	}
	defer s.release(conn, database)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, &apperrors.ExecutionError{Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}

	rowsAffected, err := s.cascade(ctx, tx, res, req)
	if err == nil {
		err = s.runTriggers(ctx, res, req, false)
	}
	if err != nil {
		s.rollback(tx, res, req)
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, &apperrors.ExecutionError{Err: fmt.Errorf("failed to commit transaction: %w", err)}
	}

	s.logger.Debug("Write completed",
		zap.String("resource", res.Name()),
		zap.String("request_id", req.ID.String()),
		zap.String("type", string(req.Type)),
		zap.Int64("rows_affected", rowsAffected),
	)
	return rowsAffected, nil
}

func (s *resourceService) rollback(tx *sql.Tx, res *models.Resource, req *models.Request) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.Warn("Failed to roll back transaction",
			zap.String("resource", res.Name()),
			zap.String("request_id", req.ID.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
	}
}

// cascade decides which levels a write touches:
//   - explicit child rows: one child-level write per row, parent untouched;
//     inserts get the parent identifiers appended to each row
//   - hierarchical delete without identifiers (or any hierarchical delete
//     with CascadeScopedDeletes): children first, then parents
//   - otherwise the parent level only
func (s *resourceService) cascade(ctx context.Context, exec execer, res *models.Resource, req *models.Request) (int64, error) {
	meta := res.MetaData()
	if !meta.IsHierarchical() {
		return s.writeLevel(ctx, exec, res, req, true)
	}

	if len(req.ChildrenParameters) > 0 {
		var total int64
		for _, params := range req.ChildrenParameters {
			if req.Type == models.RequestTypeInsert {
				params = append(append([]models.NameValuePair{}, params...), req.ResourceIdentifiers...)
			}
			n, err := s.writeLevel(ctx, exec, res, req.ChildRequest(params), false)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	}

	if req.Type == models.RequestTypeDelete &&
		(len(req.ResourceIdentifiers) == 0 || s.opts.CascadeScopedDeletes) {
		childReq := req.ChildRequest(nil)
		if len(req.ResourceIdentifiers) == 0 {
			childReq = req.ChildRequest(req.Parameters)
		}
		children, err := s.writeLevel(ctx, exec, res, childReq, false)
		if err != nil {
			return 0, err
		}
		parents, err := s.writeLevel(ctx, exec, res, req, true)
		if err != nil {
			return 0, err
		}
		return children + parents, nil
	}

	return s.writeLevel(ctx, exec, res, req, true)
}

// writeLevel executes the statements for the own table of a level and its
// extensions. Inserts write the own table first; updates and deletes write
// extensions first. Extension statements without a filtering clause are skipped.
func (s *resourceService) writeLevel(ctx context.Context, exec execer, res *models.Resource, req *models.Request, parentLevel bool) (int64, error) {
	meta := res.MetaData()
	sqls, err := s.builder.BuildWrite(meta, req, parentLevel)
	if err != nil {
		return 0, fmt.Errorf("failed to build %s for %s: %w", req.Type, res.Name(), err)
	}

	own := sqls[meta.LevelTable(parentLevel).QualifiedTableName()]
	var total int64
	run := func(statement string) error {
		n, err := s.exec(ctx, exec, res, req, statement)
		total += n
		return err
	}

	if req.Type == models.RequestTypeInsert && own != nil {
		if err := run(own.Statement); err != nil {
			return 0, err
		}
	}
	for _, ext := range meta.LevelExtensions(parentLevel) {
		st := sqls[ext.QualifiedTableName()]
		if st == nil || st.ClauseEmpty {
			continue
		}
		if err := run(st.Statement); err != nil {
			return 0, err
		}
	}
	if req.Type != models.RequestTypeInsert && own != nil {
		if err := run(own.Statement); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func (s *resourceService) exec(ctx context.Context, exec execer, res *models.Resource, req *models.Request, statement string) (int64, error) {
	s.logStatement(res, req, statement)
	result, err := exec.ExecContext(ctx, statement)
	if err != nil {
		return 0, &apperrors.ExecutionError{Statement: statement, Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, &apperrors.ExecutionError{Statement: statement, Err: err}
	}
	return n, nil
}
