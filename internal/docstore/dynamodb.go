package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const dynamoKey = "id"

// DynamoAPI is the subset of *dynamodb.Client used by Dynamo.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Dynamo stores each collection in its own DynamoDB table keyed by "id".
// Nested update paths require their parent map to exist already.
type Dynamo struct {
	client      DynamoAPI
	tablePrefix string
}

// NewDynamo constructs a document store over DynamoDB tables named
// tablePrefix + collection.
func NewDynamo(client DynamoAPI, tablePrefix string) *Dynamo {
	return &Dynamo{client: client, tablePrefix: tablePrefix}
}

func (d *Dynamo) table(collection string) *string {
	return aws.String(d.tablePrefix + collection)
}

func keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoKey: &types.AttributeValueMemberS{Value: id},
	}
}

func (d *Dynamo) Get(ctx context.Context, collection, id string, dst any) error {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      d.table(collection),
		Key:            keyOf(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get item %s/%s: %w", collection, id, err)
	}
	if out.Item == nil {
		return ErrNotFound
	}

	delete(out.Item, dynamoKey)
	if err := attributevalue.UnmarshalMap(out.Item, dst); err != nil {
		return fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
	}
	return nil
}

func (d *Dynamo) Create(ctx context.Context, collection, id string, doc any) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	item[dynamoKey] = &types.AttributeValueMemberS{Value: id}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           d.table(collection),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": dynamoKey,
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrExists
		}
		return fmt.Errorf("put item %s/%s: %w", collection, id, err)
	}
	return nil
}

func (d *Dynamo) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	if err := d.Create(ctx, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (d *Dynamo) Update(ctx context.Context, collection, id string, updates ...Update) error {
	return d.update(ctx, collection, id, true, updates)
}

func (d *Dynamo) Upsert(ctx context.Context, collection, id string, updates ...Update) error {
	return d.update(ctx, collection, id, false, updates)
}

func (d *Dynamo) update(ctx context.Context, collection, id string, mustExist bool, updates []Update) error {
	if err := validateUpdates(updates); err != nil {
		return err
	}

	expr, err := buildUpdateExpression(updates)
	if err != nil {
		return fmt.Errorf("build update for %s/%s: %w", collection, id, err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 d.table(collection),
		Key:                       keyOf(id),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
	}
	if expr.update != "" {
		input.UpdateExpression = aws.String(expr.update)
	}
	if mustExist {
		input.ConditionExpression = aws.String("attribute_exists(#id)")
		input.ExpressionAttributeNames["#id"] = dynamoKey
	}
	if len(input.ExpressionAttributeValues) == 0 {
		input.ExpressionAttributeValues = nil
	}

	if input.UpdateExpression == nil {
		// Nothing to write: the document only has to exist (or be created).
		if mustExist {
			var existing map[string]any
			return d.Get(ctx, collection, id, &existing)
		}
		input.UpdateExpression = aws.String("SET #id = :id")
		input.ExpressionAttributeNames["#id"] = dynamoKey
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: id},
		}
	}

	if _, err := d.client.UpdateItem(ctx, input); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrNotFound
		}
		return fmt.Errorf("update item %s/%s: %w", collection, id, err)
	}
	return nil
}

type updateExpression struct {
	update string
	names  map[string]string
	values map[string]types.AttributeValue
}

// buildUpdateExpression turns updates into SET/REMOVE clauses with every path
// segment aliased, since uids are not valid DynamoDB identifiers.
func buildUpdateExpression(updates []Update) (updateExpression, error) {
	expr := updateExpression{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
	aliases := map[string]string{}

	var sets, removes []string
	for i, u := range updates {
		segments := strings.Split(u.Path, ".")
		aliased := make([]string, len(segments))
		for j, seg := range segments {
			alias, ok := aliases[seg]
			if !ok {
				alias = "#p" + strconv.Itoa(len(aliases))
				aliases[seg] = alias
				expr.names[alias] = seg
			}
			aliased[j] = alias
		}
		path := strings.Join(aliased, ".")

		if u.Delete {
			removes = append(removes, path)
			continue
		}

		av, err := attributevalue.Marshal(u.Value)
		if err != nil {
			return updateExpression{}, fmt.Errorf("marshal %s: %w", u.Path, err)
		}
		placeholder := ":v" + strconv.Itoa(i)
		expr.values[placeholder] = av
		sets = append(sets, path+" = "+placeholder)
	}

	var clauses []string
	if len(sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(removes, ", "))
	}
	expr.update = strings.Join(clauses, " ")
	return expr, nil
}

func (d *Dynamo) Delete(ctx context.Context, collection, id string) error {
	if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: d.table(collection),
		Key:       keyOf(id),
	}); err != nil {
		return fmt.Errorf("delete item %s/%s: %w", collection, id, err)
	}
	return nil
}

func (d *Dynamo) Query(ctx context.Context, collection, field string, value any) ([]Snapshot, error) {
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal query value: %w", err)
	}

	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:        d.table(collection),
		FilterExpression: aws.String("#f = :v"),
		ExpressionAttributeNames: map[string]string{
			"#f": field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": av,
		},
		ConsistentRead: aws.Bool(true),
	})

	var out []Snapshot
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s by %s: %w", collection, field, err)
		}
		for _, item := range page.Items {
			out = append(out, dynamoSnapshot(item))
		}
	}
	return out, nil
}

func dynamoSnapshot(item map[string]types.AttributeValue) Snapshot {
	var id string
	if key, ok := item[dynamoKey].(*types.AttributeValueMemberS); ok {
		id = key.Value
	}
	body := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		if k != dynamoKey {
			body[k] = v
		}
	}
	return Snapshot{ID: id, decode: func(dst any) error {
		return attributevalue.UnmarshalMap(body, dst)
	}}
}

var _ Store = (*Dynamo)(nil)
