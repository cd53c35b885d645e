// Package fbdynamodb provides a DynamoDB-backed persistent data store.
//
// The store is always used behind the SDK's caching wrapper; configure it through
// Config.PersistentDataStore:
//
//	store, err := fbdynamodb.DataStore("my-table").Build()
//	config := fbclient.Config{PersistentDataStore: store}
//
// All data kinds share a single table. The partition key is "namespace" (the data kind
// name with an optional prefix) and the sort key is "key". DynamoDB forbids empty
// attribute values, so the serialized item is stored whole in one "item" attribute
// rather than as one attribute per property; the version is duplicated in a "version"
// attribute so upserts can be conditioned on it without parsing the item.
package fbdynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldlog"

	"github.com/featurebridge/go-server-sdk/interfaces"
)

const (
	tablePartitionKey = "namespace"
	tableSortKey      = "key"
	versionAttribute  = "version"
	itemJSONAttribute = "item"

	initedKey = "$inited"

	// batchWriteLimit is DynamoDB's maximum number of items per BatchWriteItem call.
	batchWriteLimit = 25
)

// DataStoreBuilder configures a DynamoDB data store.
type DataStoreBuilder struct {
	table   string
	prefix  string
	client  *dynamodb.Client
	loggers ldlog.Loggers
}

// DataStore creates a builder for a store using the given table. The table must
// already exist, with a string partition key "namespace" and a string sort key "key".
func DataStore(table string) *DataStoreBuilder {
	return &DataStoreBuilder{table: table}
}

// Prefix sets an optional namespace prefix, so multiple environments can share one
// table.
func (b *DataStoreBuilder) Prefix(prefix string) *DataStoreBuilder {
	b.prefix = prefix
	return b
}

// Client replaces the DynamoDB client; without it, one is built from the default AWS
// configuration sources (environment, shared config files, instance metadata).
func (b *DataStoreBuilder) Client(client *dynamodb.Client) *DataStoreBuilder {
	b.client = client
	return b
}

// Loggers sets the log destination for the store.
func (b *DataStoreBuilder) Loggers(loggers ldlog.Loggers) *DataStoreBuilder {
	b.loggers = loggers
	return b
}

// Build creates the store.
func (b *DataStoreBuilder) Build() (interfaces.PersistentDataStore, error) {
	if b.table == "" {
		return nil, errors.New("table name is required")
	}
	client := b.client
	if client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("unable to configure DynamoDB client: %s", err)
		}
		client = dynamodb.NewFromConfig(cfg)
	}
	loggers := b.loggers
	loggers.SetPrefix("DynamoDBDataStore:")
	return &dynamoDBDataStore{
		client:  client,
		table:   b.table,
		prefix:  b.prefix,
		loggers: loggers,
	}, nil
}

// dynamoDBDataStore implements interfaces.PersistentDataStore against DynamoDB.
type dynamoDBDataStore struct {
	client  *dynamodb.Client
	table   string
	prefix  string
	loggers ldlog.Loggers
}

func (store *dynamoDBDataStore) Init(allData []interfaces.StoreSerializedCollection) error {
	ctx := context.Background()

	// Read the keys that are already in the table so that anything absent from the new
	// data can be deleted afterward.
	unusedOldKeys, err := store.readExistingKeys(ctx, allData)
	if err != nil {
		return fmt.Errorf("failed to get existing items prior to Init: %s", err)
	}

	requests := make([]types.WriteRequest, 0)
	numItems := 0

	for _, coll := range allData {
		namespace := store.namespaceForKind(coll.Kind)
		for _, item := range coll.Items {
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{
					Item: store.encodeItem(namespace, item.Key, item.Item),
				},
			})
			delete(unusedOldKeys, namespaceAndKey{namespace, item.Key})
			numItems++
		}
	}

	for k := range unusedOldKeys {
		if k.namespace == store.initedNamespace() {
			continue
		}
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					tablePartitionKey: &types.AttributeValueMemberS{Value: k.namespace},
					tableSortKey:      &types.AttributeValueMemberS{Value: k.key},
				},
			},
		})
	}

	// The special item marking the table as initialized.
	requests = append(requests, types.WriteRequest{
		PutRequest: &types.PutRequest{
			Item: map[string]types.AttributeValue{
				tablePartitionKey: &types.AttributeValueMemberS{Value: store.initedNamespace()},
				tableSortKey:      &types.AttributeValueMemberS{Value: initedKey},
			},
		},
	})

	if err := store.batchWrite(ctx, requests); err != nil {
		return err
	}
	store.loggers.Infof("Initialized table %q with %d items", store.table, numItems)
	return nil
}

func (store *dynamoDBDataStore) Get(
	kind interfaces.StoreDataKind,
	key string,
) (interfaces.StoreSerializedItemDescriptor, error) {
	result, err := store.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName:      aws.String(store.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			tablePartitionKey: &types.AttributeValueMemberS{Value: store.namespaceForKind(kind)},
			tableSortKey:      &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return interfaces.StoreSerializedItemDescriptor{}.NotFound(), err
	}
	if len(result.Item) == 0 {
		if store.loggers.IsDebugEnabled() {
			store.loggers.Debugf(`Key %s not found in "%s"`, key, kind.GetName())
		}
		return interfaces.StoreSerializedItemDescriptor{}.NotFound(), nil
	}
	return decodeItem(result.Item)
}

func (store *dynamoDBDataStore) GetAll(
	kind interfaces.StoreDataKind,
) ([]interfaces.StoreKeyedSerializedItemDescriptor, error) {
	ctx := context.Background()
	results := make([]interfaces.StoreKeyedSerializedItemDescriptor, 0)

	paginator := dynamodb.NewQueryPaginator(store.client, store.queryInputForKind(kind))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, attrs := range page.Items {
			itemKey := ""
			if keyAttr, ok := attrs[tableSortKey].(*types.AttributeValueMemberS); ok {
				itemKey = keyAttr.Value
			}
			item, err := decodeItem(attrs)
			if err != nil {
				return nil, err
			}
			results = append(results, interfaces.StoreKeyedSerializedItemDescriptor{
				Key:  itemKey,
				Item: item,
			})
		}
	}
	return results, nil
}

func (store *dynamoDBDataStore) Upsert(
	kind interfaces.StoreDataKind,
	key string,
	newItem interfaces.StoreSerializedItemDescriptor,
) (bool, error) {
	// The condition makes DynamoDB do the version gating atomically: the put succeeds
	// only if the item does not exist yet or has a strictly older version.
	_, err := store.client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(store.table),
		Item:      store.encodeItem(store.namespaceForKind(kind), key, newItem),
		ConditionExpression: aws.String(
			"attribute_not_exists(#namespace) or attribute_not_exists(#key) or :version > #version",
		),
		ExpressionAttributeNames: map[string]string{
			"#namespace": tablePartitionKey,
			"#key":       tableSortKey,
			"#version":   versionAttribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":version": &types.AttributeValueMemberN{Value: strconv.Itoa(newItem.Version)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			if store.loggers.IsDebugEnabled() {
				store.loggers.Debugf(`Not updating key %s in "%s": stored version is not older than %d`,
					key, kind.GetName(), newItem.Version)
			}
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (store *dynamoDBDataStore) IsInitialized() bool {
	result, err := store.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(store.table),
		Key: map[string]types.AttributeValue{
			tablePartitionKey: &types.AttributeValueMemberS{Value: store.initedNamespace()},
			tableSortKey:      &types.AttributeValueMemberS{Value: initedKey},
		},
	})
	return err == nil && len(result.Item) > 0
}

func (store *dynamoDBDataStore) IsStoreAvailable() bool {
	_, err := store.client.GetItem(context.Background(), &dynamodb.GetItemInput{
		TableName: aws.String(store.table),
		Key: map[string]types.AttributeValue{
			tablePartitionKey: &types.AttributeValueMemberS{Value: store.initedNamespace()},
			tableSortKey:      &types.AttributeValueMemberS{Value: initedKey},
		},
	})
	return err == nil
}

func (store *dynamoDBDataStore) Close() error {
	return nil
}

type namespaceAndKey struct {
	namespace string
	key       string
}

func (store *dynamoDBDataStore) readExistingKeys(
	ctx context.Context,
	forCollections []interfaces.StoreSerializedCollection,
) (map[namespaceAndKey]struct{}, error) {
	keys := make(map[namespaceAndKey]struct{})
	for _, coll := range forCollections {
		input := store.queryInputForKind(coll.Kind)
		// Only the key attributes are needed here.
		input.ProjectionExpression = aws.String("#namespace, #key")
		input.ExpressionAttributeNames["#key"] = tableSortKey

		paginator := dynamodb.NewQueryPaginator(store.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, attrs := range page.Items {
				nk := namespaceAndKey{}
				if v, ok := attrs[tablePartitionKey].(*types.AttributeValueMemberS); ok {
					nk.namespace = v.Value
				}
				if v, ok := attrs[tableSortKey].(*types.AttributeValueMemberS); ok {
					nk.key = v.Value
				}
				keys[nk] = struct{}{}
			}
		}
	}
	return keys, nil
}

func (store *dynamoDBDataStore) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for i := 0; i < len(requests); i += batchWriteLimit {
		j := i + batchWriteLimit
		if j > len(requests) {
			j = len(requests)
		}
		batch := map[string][]types.WriteRequest{store.table: requests[i:j]}
		_, err := store.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: batch,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (store *dynamoDBDataStore) queryInputForKind(kind interfaces.StoreDataKind) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:      aws.String(store.table),
		ConsistentRead: aws.Bool(true),
		KeyConditionExpression: aws.String(
			"#namespace = :namespace",
		),
		ExpressionAttributeNames: map[string]string{
			"#namespace": tablePartitionKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":namespace": &types.AttributeValueMemberS{Value: store.namespaceForKind(kind)},
		},
	}
}

func (store *dynamoDBDataStore) namespaceForKind(kind interfaces.StoreDataKind) string {
	return store.prefixed(kind.GetName())
}

func (store *dynamoDBDataStore) initedNamespace() string {
	return store.prefixed(initedKey)
}

func (store *dynamoDBDataStore) prefixed(baseName string) string {
	if store.prefix == "" {
		return baseName
	}
	return store.prefix + ":" + baseName
}

func (store *dynamoDBDataStore) encodeItem(
	namespace, key string,
	item interfaces.StoreSerializedItemDescriptor,
) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		tablePartitionKey: &types.AttributeValueMemberS{Value: namespace},
		tableSortKey:      &types.AttributeValueMemberS{Value: key},
		versionAttribute:  &types.AttributeValueMemberN{Value: strconv.Itoa(item.Version)},
		itemJSONAttribute: &types.AttributeValueMemberS{Value: string(item.SerializedItem)},
	}
}

func decodeItem(attrs map[string]types.AttributeValue) (interfaces.StoreSerializedItemDescriptor, error) {
	versionAttr, _ := attrs[versionAttribute].(*types.AttributeValueMemberN)
	itemAttr, _ := attrs[itemJSONAttribute].(*types.AttributeValueMemberS)
	if versionAttr == nil || itemAttr == nil {
		return interfaces.StoreSerializedItemDescriptor{}.NotFound(),
			errors.New("DynamoDB map did not contain expected attributes")
	}
	version, err := strconv.Atoi(versionAttr.Value)
	if err != nil {
		return interfaces.StoreSerializedItemDescriptor{}.NotFound(),
			fmt.Errorf("unexpected non-numeric version: %s", versionAttr.Value)
	}
	return interfaces.StoreSerializedItemDescriptor{
		Version:        version,
		SerializedItem: []byte(itemAttr.Value),
	}, nil
}
