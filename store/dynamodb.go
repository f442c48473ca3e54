package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sicko7947/smartflow"
)

// sortableTime is a fixed-width UTC layout so index sort keys order lexically
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// DynamoDBStore implements smartflow.ExecutionStore using AWS DynamoDB
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string
}

// NewDynamoDBStore creates a new DynamoDB-backed execution store
func NewDynamoDBStore(client DynamoDBClient, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
	}
}

// Execution operations

// InsertExecution writes a new execution; an existing id is rejected
func (s *DynamoDBStore) InsertExecution(ctx context.Context, exec *smartflow.WorkflowExecution) error {
	item, err := attributevalue.MarshalMap(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow execution: %w", err)
	}

	// Add keys
	item[AttrPK] = &types.AttributeValueMemberS{Value: executionPK(exec.ID)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: metaSK()}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeExecution}

	// Add GSI keys
	item[AttrGSI1PK] = &types.AttributeValueMemberS{Value: executionGSI1PK()}
	item[AttrGSI1SK] = &types.AttributeValueMemberS{
		Value: executionGSI1SK(exec.StartTime.UTC().Format(sortableTime), exec.ID),
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrPK,
		},
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return fmt.Errorf("workflow execution %s already exists", exec.ID)
		}
		return fmt.Errorf("failed to insert workflow execution: %w", err)
	}

	return nil
}

// ListRecentExecutions returns up to limit executions, newest first
func (s *DynamoDBStore) ListRecentExecutions(ctx context.Context, limit int) ([]*smartflow.WorkflowExecution, error) {
	if limit <= 0 {
		return []*smartflow.WorkflowExecution{}, nil
	}

	executions := make([]*smartflow.WorkflowExecution, 0, limit)
	var startKey map[string]types.AttributeValue

	for len(executions) < limit {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(IndexRecentExecutions),
			KeyConditionExpression: aws.String("#gsi1pk = :pk"),
			ExpressionAttributeNames: map[string]string{
				"#gsi1pk": AttrGSI1PK,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: executionGSI1PK()},
			},
			ScanIndexForward:  aws.Bool(false),
			Limit:             aws.Int32(int32(limit - len(executions))),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query recent executions: %w", err)
		}

		for _, item := range result.Items {
			var exec smartflow.WorkflowExecution
			if err := attributevalue.UnmarshalMap(item, &exec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal workflow execution: %w", err)
			}
			executions = append(executions, &exec)
		}

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return executions, nil
}

// Workflow operations

// UpsertWorkflow creates or replaces a workflow definition
func (s *DynamoDBStore) UpsertWorkflow(ctx context.Context, wf *smartflow.Workflow) error {
	item, err := attributevalue.MarshalMap(wf)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	item[AttrPK] = &types.AttributeValueMemberS{Value: workflowPK(wf.ID)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: metaSK()}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeWorkflow}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert workflow: %w", err)
	}

	return nil
}

// GetWorkflow loads a workflow definition
func (s *DynamoDBStore) GetWorkflow(ctx context.Context, workflowID string) (*smartflow.Workflow, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			AttrPK: &types.AttributeValueMemberS{Value: workflowPK(workflowID)},
			AttrSK: &types.AttributeValueMemberS{Value: metaSK()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("%w: %s", smartflow.ErrWorkflowNotFound, workflowID)
	}

	var wf smartflow.Workflow
	if err := attributevalue.UnmarshalMap(result.Item, &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	return &wf, nil
}
