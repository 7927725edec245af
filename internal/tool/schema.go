package tool

import (
	"fmt"
)

// FieldType 是参数字段支持的类型。
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeBool   FieldType = "boolean"
	TypeArray  FieldType = "array"
	TypeObject FieldType = "object"
)

// Field 声明一个参数字段。
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Description string
}

// Schema 描述工具参数的结构，在调用前校验。
type Schema struct {
	Fields []Field
}

// Object 构造一个参数 schema。
func Object(fields ...Field) Schema {
	return Schema{Fields: fields}
}

// Validate 检查 args 是否满足 schema：必填字段存在且类型匹配。
// 未声明的字段被忽略，校验是宽松的。
func (s Schema) Validate(args Args) error {
	for _, field := range s.Fields {
		value, ok := args[field.Name]
		if !ok || value == nil {
			if field.Required {
				return fmt.Errorf("缺少必填参数 %q", field.Name)
			}
			continue
		}
		if !matchesType(value, field.Type) {
			return fmt.Errorf("参数 %q 类型不是 %s", field.Name, field.Type)
		}
	}
	return nil
}

func matchesType(value any, t FieldType) bool {
	switch t {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case TypeBool:
		_, ok := value.(bool)
		return ok
	case TypeArray:
		switch value.(type) {
		case []any, []string, []map[string]any:
			return true
		}
		return false
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
