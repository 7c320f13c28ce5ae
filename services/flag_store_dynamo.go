package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"starmatch_server/models"
	"starmatch_server/utils"
)

// DynamoFlagStore keeps flags in a single table keyed
// PK = "USER#<source>", SK = "FLAG#<category>#<target>".
type DynamoFlagStore struct {
	Dynamo *DynamoService
	Table  string
}

// NewDynamoFlagStore creates a store over table.
func NewDynamoFlagStore(dynamo *DynamoService, table string) *DynamoFlagStore {
	if table == "" {
		table = models.FlagsTable
	}
	return &DynamoFlagStore{Dynamo: dynamo, Table: table}
}

func flagPK(source string) string { return "USER#" + source }

func flagSKPrefix(category string) string { return "FLAG#" + category + "#" }

func flagItemKey(key models.FlagKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": utils.S(flagPK(key.SourceUser)),
		"SK": utils.S(flagSKPrefix(key.Category) + key.TargetUser),
	}
}

func (s *DynamoFlagStore) GetFlag(ctx context.Context, key models.FlagKey) (*models.Flag, error) {
	item, err := s.Dynamo.GetItem(ctx, s.Table, flagItemKey(key))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	f, err := decodeFlag(item)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *DynamoFlagStore) PutFlag(ctx context.Context, flag models.Flag) (models.Flag, error) {
	expected := flag.Version
	cond := &Conditional{
		Expression: "attribute_not_exists(PK)",
	}
	if expected != 0 {
		cond = &Conditional{
			Expression: "#version = :expected",
			Names:      map[string]string{"#version": "version"},
			Values:     map[string]types.AttributeValue{":expected": utils.N(expected)},
		}
	}

	flag.Version = expected + 1
	item, err := encodeFlag(flag)
	if err != nil {
		return models.Flag{}, err
	}

	if err := s.Dynamo.PutItem(ctx, s.Table, item, cond); err != nil {
		if IsConditionFailed(err) {
			return models.Flag{}, ErrVersionConflict
		}
		return models.Flag{}, err
	}
	return flag, nil
}

func (s *DynamoFlagStore) DeleteFlag(ctx context.Context, key models.FlagKey) (*models.Flag, error) {
	old, err := s.Dynamo.DeleteItem(ctx, s.Table, flagItemKey(key))
	if err != nil || old == nil {
		return nil, err
	}
	f, err := decodeFlag(old)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *DynamoFlagStore) CountFlags(ctx context.Context, q FlagQuery) (int, error) {
	if q.SourceUser == "" {
		flags, err := s.ListFlags(ctx, q)
		return len(flags), err
	}
	return s.Dynamo.QueryCount(ctx, s.queryInput(q))
}

func (s *DynamoFlagStore) ListFlags(ctx context.Context, q FlagQuery) ([]models.Flag, error) {
	var (
		items []map[string]types.AttributeValue
		err   error
	)
	if q.SourceUser != "" {
		items, err = s.Dynamo.QueryAll(ctx, s.queryInput(q))
	} else {
		items, err = s.Dynamo.ScanAll(ctx, s.scanInput(q))
	}
	if err != nil {
		return nil, err
	}

	flags := make([]models.Flag, 0, len(items))
	for _, item := range items {
		f, err := decodeFlag(item)
		if err != nil {
			s.Dynamo.Log.Warn().Err(err).Str("pk", utils.ExtractString(item, "PK")).Msg("skipping undecodable flag")
			continue
		}
		flags = append(flags, f)
	}
	return flags, nil
}

func (s *DynamoFlagStore) queryInput(q FlagQuery) *dynamodb.QueryInput {
	values := map[string]types.AttributeValue{":pk": utils.S(flagPK(q.SourceUser))}
	keyCondition := "PK = :pk"
	switch {
	case q.Category != "" && q.TargetUser != "":
		keyCondition += " AND SK = :sk"
		values[":sk"] = utils.S(flagSKPrefix(q.Category) + q.TargetUser)
	case q.Category != "":
		keyCondition += " AND begins_with(SK, :sk)"
		values[":sk"] = utils.S(flagSKPrefix(q.Category))
	}

	filter, names := buildFlagFilter(FlagQuery{
		TargetUser:    q.TargetUser,
		ModifiedSince: q.ModifiedSince,
		MinValue:      q.MinValue,
		MaxValue:      q.MaxValue,
	}, values)

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.Table),
		KeyConditionExpression:    aws.String(keyCondition),
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
	}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
		input.ExpressionAttributeNames = names
	}
	return input
}

func (s *DynamoFlagStore) scanInput(q FlagQuery) *dynamodb.ScanInput {
	values := map[string]types.AttributeValue{}
	filter, names := buildFlagFilter(q, values)

	input := &dynamodb.ScanInput{TableName: aws.String(s.Table)}
	if filter != "" {
		input.FilterExpression = aws.String(filter)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}
	return input
}

// buildFlagFilter turns the non-key parts of q into a filter expression,
// adding placeholders to values.
func buildFlagFilter(q FlagQuery, values map[string]types.AttributeValue) (string, map[string]string) {
	var parts []string
	names := map[string]string{}

	if q.SourceUser != "" {
		names["#sourceUser"] = "sourceUser"
		values[":sourceUser"] = utils.S(q.SourceUser)
		parts = append(parts, "#sourceUser = :sourceUser")
	}
	if q.TargetUser != "" {
		names["#targetUser"] = "targetUser"
		values[":targetUser"] = utils.S(q.TargetUser)
		parts = append(parts, "#targetUser = :targetUser")
	}
	if q.Category != "" {
		names["#category"] = "category"
		values[":category"] = utils.S(q.Category)
		parts = append(parts, "#category = :category")
	}
	if !q.ModifiedSince.IsZero() {
		names["#modifiedAt"] = "modifiedAt"
		values[":since"] = utils.N(q.ModifiedSince.UnixMilli())
		parts = append(parts, "#modifiedAt >= :since")
	}
	if q.MinValue != nil || q.MaxValue != nil {
		names["#value"] = "value"
		names["#valueType"] = "valueType"
		values[":numericTypes1"] = utils.S(string(models.ValueInt))
		values[":numericTypes2"] = utils.S(string(models.ValueDouble))
		parts = append(parts, "#valueType IN (:numericTypes1, :numericTypes2)")
		if q.MinValue != nil {
			values[":minValue"] = utils.N(*q.MinValue)
			parts = append(parts, "#value >= :minValue")
		}
		if q.MaxValue != nil {
			values[":maxValue"] = utils.N(*q.MaxValue)
			parts = append(parts, "#value <= :maxValue")
		}
	}

	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, " AND "), names
}

func encodeFlag(f models.Flag) (map[string]types.AttributeValue, error) {
	value, err := encodeFlagValue(f.Value)
	if err != nil {
		return nil, err
	}
	return map[string]types.AttributeValue{
		"PK":         utils.S(flagPK(f.SourceUser)),
		"SK":         utils.S(flagSKPrefix(f.Category) + f.TargetUser),
		"sourceUser": utils.S(f.SourceUser),
		"targetUser": utils.S(f.TargetUser),
		"category":   utils.S(f.Category),
		"valueType":  utils.S(string(f.ValueType())),
		"value":      value,
		"isRating":   &types.AttributeValueMemberBOOL{Value: f.IsRating},
		"active":     &types.AttributeValueMemberBOOL{Value: f.Active},
		"createdAt":  utils.N(f.CreatedAt.UnixMilli()),
		"modifiedAt": utils.N(f.ModifiedAt.UnixMilli()),
		"version":    utils.N(f.Version),
	}, nil
}

func decodeFlag(item map[string]types.AttributeValue) (models.Flag, error) {
	vt := models.ValueType(utils.ExtractString(item, "valueType"))
	value, err := decodeFlagValue(vt, item["value"])
	if err != nil {
		return models.Flag{}, err
	}
	return models.Flag{
		SourceUser: utils.ExtractString(item, "sourceUser"),
		TargetUser: utils.ExtractString(item, "targetUser"),
		Category:   utils.ExtractString(item, "category"),
		Value:      value,
		IsRating:   utils.ExtractBool(item, "isRating"),
		Active:     utils.ExtractBool(item, "active"),
		CreatedAt:  time.UnixMilli(utils.ExtractInt64(item, "createdAt")).UTC(),
		ModifiedAt: time.UnixMilli(utils.ExtractInt64(item, "modifiedAt")).UTC(),
		Version:    utils.ExtractInt64(item, "version"),
	}, nil
}

func encodeFlagValue(v models.FlagValue) (types.AttributeValue, error) {
	switch x := v.(type) {
	case models.BoolValue:
		return &types.AttributeValueMemberBOOL{Value: bool(x)}, nil
	case models.IntValue:
		return utils.N(int64(x)), nil
	case models.FloatValue:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(float64(x), 'f', -1, 64)}, nil
	case models.StringValue:
		return utils.S(string(x)), nil
	case models.TextValue:
		return utils.S(string(x)), nil
	case models.TitleTextValue:
		return &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"title": utils.S(x.Title),
			"text":  utils.S(x.Text),
		}}, nil
	case models.StringListValue:
		list := make([]types.AttributeValue, 0, len(x))
		for _, s := range x {
			list = append(list, utils.S(s))
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	case models.IntListValue:
		list := make([]types.AttributeValue, 0, len(x))
		for _, n := range x {
			list = append(list, utils.N(n))
		}
		return &types.AttributeValueMemberL{Value: list}, nil
	default:
		return nil, fmt.Errorf("%w: %T", models.ErrUnknownValueType, v)
	}
}

func decodeFlagValue(vt models.ValueType, av types.AttributeValue) (models.FlagValue, error) {
	mismatch := func() error {
		return fmt.Errorf("value attribute %T does not match type %q", av, vt)
	}
	switch vt {
	case models.ValueBoolean:
		b, ok := av.(*types.AttributeValueMemberBOOL)
		if !ok {
			return nil, mismatch()
		}
		return models.BoolValue(b.Value), nil
	case models.ValueInt:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, mismatch()
		}
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode int value: %w", err)
		}
		return models.IntValue(i), nil
	case models.ValueDouble:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, mismatch()
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("decode double value: %w", err)
		}
		return models.FloatValue(f), nil
	case models.ValueString, models.ValueText:
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return nil, mismatch()
		}
		if vt == models.ValueText {
			return models.TextValue(s.Value), nil
		}
		return models.StringValue(s.Value), nil
	case models.ValueTitleText:
		m, ok := av.(*types.AttributeValueMemberM)
		if !ok {
			return nil, mismatch()
		}
		return models.TitleTextValue{
			Title: utils.ExtractString(m.Value, "title"),
			Text:  utils.ExtractString(m.Value, "text"),
		}, nil
	case models.ValueArrayString, models.ValueArrayInt:
		l, ok := av.(*types.AttributeValueMemberL)
		if !ok {
			return nil, mismatch()
		}
		if vt == models.ValueArrayString {
			out := make(models.StringListValue, 0, len(l.Value))
			for _, el := range l.Value {
				s, ok := el.(*types.AttributeValueMemberS)
				if !ok {
					return nil, mismatch()
				}
				out = append(out, s.Value)
			}
			return out, nil
		}
		out := make(models.IntListValue, 0, len(l.Value))
		for _, el := range l.Value {
			n, ok := el.(*types.AttributeValueMemberN)
			if !ok {
				return nil, mismatch()
			}
			i, err := strconv.ParseInt(n.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("decode int element: %w", err)
			}
			out = append(out, i)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownValueType, vt)
	}
}

var _ FlagStore = (*DynamoFlagStore)(nil)
