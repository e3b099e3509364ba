package utils

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// S wraps a string attribute value.
func S(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

// Key builds a string-keyed primary key from name/value pairs.
func Key(pairs ...string) map[string]types.AttributeValue {
	key := make(map[string]types.AttributeValue, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key[pairs[i]] = S(pairs[i+1])
	}
	return key
}

// ExtractString safely extracts a string from a DynamoDB attribute map,
// trying each field name in turn.
func ExtractString(item map[string]types.AttributeValue, fields ...string) string {
	for _, field := range fields {
		if attr, ok := item[field]; ok {
			if v, ok := attr.(*types.AttributeValueMemberS); ok && v.Value != "" {
				return v.Value
			}
		}
	}
	return ""
}

// ExtractStringList reads a list or string-set attribute.
func ExtractStringList(item map[string]types.AttributeValue, field string) []string {
	switch v := item[field].(type) {
	case *types.AttributeValueMemberSS:
		return append([]string(nil), v.Value...)
	case *types.AttributeValueMemberL:
		out := make([]string, 0, len(v.Value))
		for _, elem := range v.Value {
			if s, ok := elem.(*types.AttributeValueMemberS); ok {
				out = append(out, s.Value)
			}
		}
		return out
	}
	return nil
}
