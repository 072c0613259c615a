// Package dynamo implements archive.Repository on a single DynamoDB table.
//
// Each newsletter is one item keyed PK=NEWSLETTER#<id>, SK=META. Two global
// secondary indexes serve the read paths:
//
//	GSI1 (GSI1PK="NEWSLETTERS", GSI1SK=<saved_at>#<id>)  newest-first listing
//	GSI2 (GSI2PK="TITLE#<title>", GSI2SK=<saved_at>)     share-link lookup
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/service/archive"
)

const (
	listIndex  = "GSI1"
	titleIndex = "GSI2"
	listPK     = "NEWSLETTERS"
	metaSK     = "META"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// newsletterItem is the stored shape of a newsletter.
type newsletterItem struct {
	PK       string           `dynamodbav:"PK"`
	SK       string           `dynamodbav:"SK"`
	GSI1PK   string           `dynamodbav:"GSI1PK"`
	GSI1SK   string           `dynamodbav:"GSI1SK"`
	GSI2PK   string           `dynamodbav:"GSI2PK"`
	GSI2SK   string           `dynamodbav:"GSI2SK"`
	ID       string           `dynamodbav:"ID"`
	Title    string           `dynamodbav:"Title"`
	Tag      string           `dynamodbav:"Tag"`
	Tags     []string         `dynamodbav:"Tags,stringset,omitempty"`
	Category string           `dynamodbav:"Category"`
	Date     string           `dynamodbav:"Date"`
	Sections []domain.Section `dynamodbav:"Content"`
	SavedAt  string           `dynamodbav:"SavedAt"`
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "NEWSLETTER#" + id},
		"SK": &types.AttributeValueMemberS{Value: metaSK},
	}
}

func (it newsletterItem) newsletter() (*domain.Newsletter, error) {
	n := &domain.Newsletter{
		ID:       it.ID,
		Title:    it.Title,
		Tag:      it.Tag,
		Category: domain.Category(it.Category),
		Sections: it.Sections,
	}
	if n.Sections == nil {
		n.Sections = []domain.Section{}
	}
	if it.Date != "" {
		d, err := domain.ParseDate(it.Date)
		if err != nil {
			return nil, err
		}
		n.Date = d
	}
	return n, nil
}

// NewsletterStore implements archive.Repository on DynamoDB.
type NewsletterStore struct {
	client API
	table  string
	now    func() time.Time
}

// NewNewsletterStore creates a store on table.
func NewNewsletterStore(client API, table string) *NewsletterStore {
	return &NewsletterStore{client: client, table: table, now: time.Now}
}

func (s *NewsletterStore) Save(ctx context.Context, doc *domain.Newsletter) error {
	savedAt := s.now().UTC().Format(time.RFC3339Nano)
	item := newsletterItem{
		PK:       "NEWSLETTER#" + doc.ID,
		SK:       metaSK,
		GSI1PK:   listPK,
		GSI1SK:   savedAt + "#" + doc.ID,
		GSI2PK:   "TITLE#" + doc.Title,
		GSI2SK:   savedAt,
		ID:       doc.ID,
		Title:    doc.Title,
		Tag:      doc.Tag,
		Tags:     doc.Tags(),
		Category: string(doc.Category),
		Date:     doc.Date.String(),
		Sections: doc.Sections,
		SavedAt:  savedAt,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("putting newsletter to DynamoDB: %w", err)
	}
	return nil
}

func (s *NewsletterStore) Get(ctx context.Context, id string) (*domain.Newsletter, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       itemKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("getting newsletter from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, archive.ErrNotFound
	}
	var item newsletterItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling newsletter: %w", err)
	}
	return item.newsletter()
}

func (s *NewsletterStore) FindByTitle(ctx context.Context, title string) (*domain.Newsletter, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(titleIndex),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "TITLE#" + title},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("querying newsletter by title: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, archive.ErrNotFound
	}
	var item newsletterItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, fmt.Errorf("unmarshaling newsletter: %w", err)
	}
	// The index may still hold the title a newsletter had before a resave.
	if item.Title != title {
		return nil, archive.ErrNotFound
	}
	return item.newsletter()
}

// List pages through the listing index. DynamoDB has no offset, so items
// before the offset are read and skipped.
func (s *NewsletterStore) List(ctx context.Context, f archive.ListFilter) ([]domain.Newsletter, int, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(listIndex),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: listPK},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if f.Category != "" {
		in.FilterExpression = aws.String("Category = :cat")
		in.ExpressionAttributeValues[":cat"] = &types.AttributeValueMemberS{Value: string(f.Category)}
	}

	var (
		out   []domain.Newsletter
		total int
	)
	for {
		result, err := s.client.Query(ctx, in)
		if err != nil {
			return nil, 0, fmt.Errorf("querying newsletters from DynamoDB: %w", err)
		}
		for _, raw := range result.Items {
			total++
			if total <= f.Offset || (f.Limit > 0 && len(out) >= f.Limit) {
				continue
			}
			var item newsletterItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				continue
			}
			n, err := item.newsletter()
			if err != nil {
				continue
			}
			out = append(out, *n)
		}
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return out, total, nil
}
