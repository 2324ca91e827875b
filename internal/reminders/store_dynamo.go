package reminders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	dynamoStatusIndex = "status-fireTimeMs-index"
	dynamoOrderIndex  = "orderId-index"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type dynamoTableAPI interface {
	DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// dynamoJob is the item layout. Times are RFC3339Nano strings; fireTimeMs is
// the numeric sort key of the status index.
type dynamoJob struct {
	JobID             string `dynamodbav:"jobId"`
	OrderID           string `dynamodbav:"orderId"`
	Recipient         string `dynamodbav:"recipient"`
	RecipientName     string `dynamodbav:"recipientName,omitempty"`
	ServiceLabel      string `dynamodbav:"serviceLabel,omitempty"`
	AppointmentTime   string `dynamodbav:"appointmentTime"`
	FireTime          string `dynamodbav:"fireTime"`
	FireTimeMs        int64  `dynamodbav:"fireTimeMs"`
	Status            string `dynamodbav:"status"`
	Attempts          int    `dynamodbav:"attempts"`
	NextAttemptAt     string `dynamodbav:"nextAttemptAt,omitempty"`
	ProviderMessageID string `dynamodbav:"providerMessageId,omitempty"`
	LastError         string `dynamodbav:"lastError,omitempty"`
	CreatedAt         string `dynamodbav:"createdAt"`
	UpdatedAt         string `dynamodbav:"updatedAt"`
}

// DynamoStore persists jobs in a DynamoDB table keyed by jobId, with GSIs on
// (status, fireTimeMs) and orderId.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoStore(client dynamoAPI, tableName string) *DynamoStore {
	if client == nil {
		panic("reminders: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("reminders: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName}
}

var _ Store = (*DynamoStore)(nil)

// EnsureTable creates the table and its indexes when missing (LocalStack and
// first deploys). The client must also implement DescribeTable/CreateTable.
func (s *DynamoStore) EnsureTable(ctx context.Context) error {
	api, ok := s.client.(dynamoTableAPI)
	if !ok {
		return errors.New("reminders: dynamodb client cannot manage tables")
	}
	_, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("reminders: describe table: %w", err)
	}
	_, err = api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("jobId"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("status"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("fireTimeMs"), AttributeType: types.ScalarAttributeTypeN},
			{AttributeName: aws.String("orderId"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("jobId"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(dynamoStatusIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("status"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("fireTimeMs"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
			{
				IndexName: aws.String(dynamoOrderIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("orderId"), KeyType: types.KeyTypeHash},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("reminders: create table: %w", err)
	}
	return nil
}

func (s *DynamoStore) Put(ctx context.Context, job *Job) error {
	if job == nil {
		return invalid("nil job")
	}
	item, err := attributevalue.MarshalMap(toDynamoJob(*job))
	if err != nil {
		return fmt.Errorf("reminders: marshal job: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("reminders: put job: %w", err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("reminders: get job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}
	job, err := decodeDynamoJob(out.Item)
	if err != nil {
		return nil, fmt.Errorf("reminders: get job: %w", err)
	}
	return &job, nil
}

func (s *DynamoStore) ListByStatus(ctx context.Context, status Status) ([]Job, error) {
	jobs, err := s.query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.tableName),
		IndexName:                aws.String(dynamoStatusIndex),
		KeyConditionExpression:   aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reminders: list by status: %w", err)
	}
	return jobs, nil
}

func (s *DynamoStore) ListByOrder(ctx context.Context, orderID string) ([]Job, error) {
	jobs, err := s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(dynamoOrderIndex),
		KeyConditionExpression: aws.String("orderId = :order"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":order": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reminders: list by order: %w", err)
	}
	return jobs, nil
}

func (s *DynamoStore) ListAll(ctx context.Context) ([]Job, error) {
	var jobs []Job
	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("reminders: list all: %w", err)
		}
		for _, item := range out.Items {
			job, err := decodeDynamoJob(item)
			if err != nil {
				return nil, fmt.Errorf("reminders: list all: %w", err)
			}
			jobs = append(jobs, job)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	sortJobs(jobs)
	return jobs, nil
}

func (s *DynamoStore) UpdateStatus(ctx context.Context, id uuid.UUID, from Status, update StatusUpdate) error {
	values := map[string]types.AttributeValue{
		":status":   &types.AttributeValueMemberS{Value: string(update.Status)},
		":from":     &types.AttributeValueMemberS{Value: string(from)},
		":attempts": &types.AttributeValueMemberN{Value: strconv.Itoa(update.Attempts)},
		":next":     &types.AttributeValueMemberS{Value: formatDynamoTime(update.NextAttemptAt)},
		":provider": &types.AttributeValueMemberS{Value: update.ProviderMessageID},
		":error":    &types.AttributeValueMemberS{Value: update.LastError},
		":updated":  &types.AttributeValueMemberS{Value: formatDynamoTime(update.UpdatedAt)},
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              s.key(id),
		UpdateExpression: aws.String("SET #status = :status, attempts = :attempts, nextAttemptAt = :next, providerMessageId = :provider, lastError = :error, updatedAt = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId) AND #status = :from"),
	})
	if err == nil {
		return nil
	}
	var conditional *types.ConditionalCheckFailedException
	if !errors.As(err, &conditional) {
		return fmt.Errorf("reminders: update status: %w", err)
	}
	if _, getErr := s.Get(ctx, id); errors.Is(getErr, ErrJobNotFound) {
		return ErrJobNotFound
	}
	return ErrStatusConflict
}

func (s *DynamoStore) key(id uuid.UUID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"jobId": &types.AttributeValueMemberS{Value: id.String()},
	}
}

func (s *DynamoStore) query(ctx context.Context, input *dynamodb.QueryInput) ([]Job, error) {
	var jobs []Job
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			job, err := decodeDynamoJob(item)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	sortJobs(jobs)
	return jobs, nil
}

func toDynamoJob(j Job) dynamoJob {
	return dynamoJob{
		JobID:             j.ID.String(),
		OrderID:           j.OrderID,
		Recipient:         j.Recipient,
		RecipientName:     j.RecipientName,
		ServiceLabel:      j.ServiceLabel,
		AppointmentTime:   formatDynamoTime(j.AppointmentTime),
		FireTime:          formatDynamoTime(j.FireTime),
		FireTimeMs:        j.FireTime.UnixMilli(),
		Status:            string(j.Status),
		Attempts:          j.Attempts,
		NextAttemptAt:     formatDynamoTime(j.NextAttemptAt),
		ProviderMessageID: j.ProviderMessageID,
		LastError:         j.LastError,
		CreatedAt:         formatDynamoTime(j.CreatedAt),
		UpdatedAt:         formatDynamoTime(j.UpdatedAt),
	}
}

func decodeDynamoJob(item map[string]types.AttributeValue) (Job, error) {
	var rec dynamoJob
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	id, err := uuid.Parse(rec.JobID)
	if err != nil {
		return Job{}, fmt.Errorf("decode job id %q: %w", rec.JobID, err)
	}
	job := Job{
		ID:                id,
		OrderID:           rec.OrderID,
		Recipient:         rec.Recipient,
		RecipientName:     rec.RecipientName,
		ServiceLabel:      rec.ServiceLabel,
		Status:            Status(rec.Status),
		Attempts:          rec.Attempts,
		ProviderMessageID: rec.ProviderMessageID,
		LastError:         rec.LastError,
	}
	for _, f := range []struct {
		raw string
		dst *time.Time
	}{
		{rec.AppointmentTime, &job.AppointmentTime},
		{rec.FireTime, &job.FireTime},
		{rec.NextAttemptAt, &job.NextAttemptAt},
		{rec.CreatedAt, &job.CreatedAt},
		{rec.UpdatedAt, &job.UpdatedAt},
	} {
		t, err := parseDynamoTime(f.raw)
		if err != nil {
			return Job{}, err
		}
		*f.dst = t
	}
	return job, nil
}

func formatDynamoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseDynamoTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode time %q: %w", raw, err)
	}
	return t, nil
}
