package postgresengine

import (
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore"
)

// buildCommitHorizonQuery builds the statement returning the lowest in-flight transaction id as text.
func (es *EventStore) buildCommitHorizonQuery() (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		Select(goqu.L(exprSnapshotXmin).As(aliasHorizon))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildBatchSelectQuery translates a BatchPlan into one SELECT statement.
//
// The transaction id is selected under an alias: ORDER BY must keep addressing the xid8 column,
// a text output column with the same name would be sorted lexically.
func (es *EventStore) buildBatchSelectQuery(plan eventstore.BatchPlan) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Select(
			colStreamID,
			colStreamPosition,
			colGlobalPosition,
			goqu.L(exprTransactionIDText).As(aliasTransactionIDText),
			colEventType,
			colEventData,
			colEventMetadata,
			colEventSchemaVersion,
			colEventID,
			colCreated,
		).
		Where(es.batchWhereExpressions(plan)...).
		Order(es.batchOrderExpressions(plan)...)

	if plan.Range.HasLimit {
		selectStmt = selectStmt.Limit(uint(plan.Range.Limit))
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (es *EventStore) batchWhereExpressions(plan eventstore.BatchPlan) []exp.Expression {
	whereExpressions := []exp.Expression{
		goqu.C(colPartition).Eq(plan.Partition),
		goqu.C(colIsArchived).IsFalse(),
		goqu.C(colTransactionID).Lt(goqu.L(castXid8, plan.Horizon.String())),
		goqu.C(colGlobalPosition).Gte(plan.Range.From),
	}

	if plan.Range.HasTo {
		whereExpressions = append(whereExpressions, goqu.C(colGlobalPosition).Lte(plan.Range.To))
	}

	return whereExpressions
}

func (es *EventStore) batchOrderExpressions(plan eventstore.BatchPlan) []exp.OrderedExpression {
	ordering := plan.Ordering()
	orderExpressions := make([]exp.OrderedExpression, 0, len(ordering))

	for _, column := range ordering {
		orderExpressions = append(orderExpressions, goqu.C(string(column)).Asc())
	}

	return orderExpressions
}

// buildSaveCheckpointQuery builds an upsert that never moves a stored checkpoint backwards.
func (es *EventStore) buildSaveCheckpointQuery(checkpoint eventstore.Checkpoint) (sqlQueryString, error) {
	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(es.checkpointTableName).
		Rows(goqu.Record{
			colProcessorID: checkpoint.ProcessorID,
			colPartition:   checkpoint.Partition,
			colPosition:    checkpoint.Position,
			colUpdatedAt:   checkpoint.UpdatedAt,
		}).
		OnConflict(
			goqu.DoUpdate(
				colProcessorID+", "+colPartition,
				goqu.Record{
					colPosition:  goqu.I(excludedPrefix + colPosition),
					colUpdatedAt: goqu.I(excludedPrefix + colUpdatedAt),
				},
			).Where(goqu.I(es.checkpointTableName + "." + colPosition).Lte(goqu.I(excludedPrefix + colPosition))),
		)

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildLoadCheckpointQuery builds the lookup of one processor's checkpoint in one partition.
func (es *EventStore) buildLoadCheckpointQuery(processorID string, partition string) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(es.checkpointTableName).
		Select(colPosition, colUpdatedAt).
		Where(
			goqu.C(colProcessorID).Eq(processorID),
			goqu.C(colPartition).Eq(partition),
		).
		Limit(checkpointLoadExpectedRowLimit)

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(eventstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}
