package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/lead-disposition/internal/config"
	"github.com/ignite/lead-disposition/internal/domain"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// DynamoAPI is the subset of the DynamoDB client the archive uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// SnapshotItem is the DynamoDB row for one archived snapshot.
type SnapshotItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	S3Key     string `dynamodbav:"S3Key,omitempty"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// AWSArchive writes each snapshot to S3 and indexes it in DynamoDB. Either
// side is skipped when its bucket or table is unset.
type AWSArchive struct {
	s3     S3API
	dynamo DynamoAPI
	bucket string
	prefix string
	table  string
	ttl    time.Duration
	now    func() time.Time
}

// NewAWSArchive loads AWS credentials from the default chain (or the
// configured profile) and builds the clients.
func NewAWSArchive(ctx context.Context, cfg config.ArchiveConfig) (*AWSArchive, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if profile := cfg.GetAWSProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewAWSArchiveWithClients(s3.NewFromConfig(awsCfg), dynamodb.NewFromConfig(awsCfg), cfg), nil
}

// NewAWSArchiveWithClients wires caller-supplied clients.
func NewAWSArchiveWithClients(s3c S3API, ddb DynamoAPI, cfg config.ArchiveConfig) *AWSArchive {
	return &AWSArchive{
		s3:     s3c,
		dynamo: ddb,
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
		table:  cfg.DynamoDBTable,
		ttl:    cfg.TTL(),
		now:    time.Now,
	}
}

func snapshotPK(clientID string) string { return "TAM#" + clientID }

// S3Key is where a snapshot document lands.
func (a *AWSArchive) S3Key(snap domain.TamSnapshot) string {
	day := domain.SnapshotDay(snap.SnapshotDate)
	return path.Join(a.prefix, snap.ClientID, day.Format("2006/01/02")+".json")
}

func (a *AWSArchive) ArchiveSnapshot(ctx context.Context, snap domain.TamSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	var key string
	if a.bucket != "" {
		key = a.S3Key(snap)
		_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("putting object to S3: %w", err)
		}
	}

	if a.table == "" {
		return nil
	}
	now := a.now().UTC()
	item := SnapshotItem{
		PK:        snapshotPK(snap.ClientID),
		SK:        domain.SnapshotDay(snap.SnapshotDate).Format(dateLayout),
		Data:      string(data),
		S3Key:     key,
		Timestamp: now.Format(time.RFC3339),
	}
	if a.ttl > 0 {
		item.TTL = now.Add(a.ttl).Unix()
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	if _, err := a.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// ListSnapshots queries the DynamoDB index.
func (a *AWSArchive) ListSnapshots(ctx context.Context, clientID string, from, to time.Time) ([]domain.TamSnapshot, error) {
	if a.table == "" {
		return nil, fmt.Errorf("listing snapshots needs a DynamoDB table")
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(a.table),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: snapshotPK(clientID)},
			":from": &types.AttributeValueMemberS{Value: domain.SnapshotDay(from).Format(dateLayout)},
			":to":   &types.AttributeValueMemberS{Value: domain.SnapshotDay(to).Format(dateLayout)},
		},
	}

	var out []domain.TamSnapshot
	for {
		res, err := a.dynamo.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("querying DynamoDB: %w", err)
		}
		for _, raw := range res.Items {
			var item SnapshotItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				log.Warn("skipping malformed archive item", "error", err)
				continue
			}
			var snap domain.TamSnapshot
			if err := json.Unmarshal([]byte(item.Data), &snap); err != nil {
				log.Warn("skipping malformed archive item", "sk", item.SK, "error", err)
				continue
			}
			out = append(out, snap)
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = res.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate.Before(out[j].SnapshotDate) })
	return out, nil
}
