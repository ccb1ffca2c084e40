package checkpoints

import (
	"fmt"
)

// Hand-maintained subset of the ONNX protobuf schema (onnx.proto, opset 13).
// Field numbers and wire types follow the upstream definition so exported
// files interoperate with other ONNX tooling. The structs use the legacy
// generated-code conventions (struct tags plus Reset/String/ProtoMessage),
// which google.golang.org/protobuf marshals through protoadapt.

// TensorProto_DataType mirrors onnx.TensorProto.DataType
type TensorProto_DataType int32

const (
	TensorProto_DataType_UNDEFINED  TensorProto_DataType = 0
	TensorProto_DataType_FLOAT      TensorProto_DataType = 1
	TensorProto_DataType_UINT8      TensorProto_DataType = 2
	TensorProto_DataType_INT8       TensorProto_DataType = 3
	TensorProto_DataType_UINT16     TensorProto_DataType = 4
	TensorProto_DataType_INT16      TensorProto_DataType = 5
	TensorProto_DataType_INT32      TensorProto_DataType = 6
	TensorProto_DataType_INT64      TensorProto_DataType = 7
	TensorProto_DataType_STRING     TensorProto_DataType = 8
	TensorProto_DataType_BOOL       TensorProto_DataType = 9
	TensorProto_DataType_FLOAT16    TensorProto_DataType = 10
	TensorProto_DataType_DOUBLE     TensorProto_DataType = 11
	TensorProto_DataType_UINT32     TensorProto_DataType = 12
	TensorProto_DataType_UINT64     TensorProto_DataType = 13
	TensorProto_DataType_COMPLEX64  TensorProto_DataType = 14
	TensorProto_DataType_COMPLEX128 TensorProto_DataType = 15
	TensorProto_DataType_BFLOAT16   TensorProto_DataType = 16
)

var tensorProtoDataTypeName = map[int32]string{
	0: "UNDEFINED", 1: "FLOAT", 2: "UINT8", 3: "INT8", 4: "UINT16",
	5: "INT16", 6: "INT32", 7: "INT64", 8: "STRING", 9: "BOOL",
	10: "FLOAT16", 11: "DOUBLE", 12: "UINT32", 13: "UINT64",
	14: "COMPLEX64", 15: "COMPLEX128", 16: "BFLOAT16",
}

func (x TensorProto_DataType) String() string {
	if name, ok := tensorProtoDataTypeName[int32(x)]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int32(x))
}

// ModelProto is the top-level ONNX model container
type ModelProto struct {
	IrVersion       int64                  `protobuf:"varint,1,opt,name=ir_version,json=irVersion,proto3" json:"ir_version,omitempty"`
	ProducerName    string                 `protobuf:"bytes,2,opt,name=producer_name,json=producerName,proto3" json:"producer_name,omitempty"`
	ProducerVersion string                 `protobuf:"bytes,3,opt,name=producer_version,json=producerVersion,proto3" json:"producer_version,omitempty"`
	Domain          string                 `protobuf:"bytes,4,opt,name=domain,proto3" json:"domain,omitempty"`
	ModelVersion    int64                  `protobuf:"varint,5,opt,name=model_version,json=modelVersion,proto3" json:"model_version,omitempty"`
	DocString       string                 `protobuf:"bytes,6,opt,name=doc_string,json=docString,proto3" json:"doc_string,omitempty"`
	Graph           *GraphProto            `protobuf:"bytes,7,opt,name=graph,proto3" json:"graph,omitempty"`
	OpsetImport     []*OperatorSetIdProto  `protobuf:"bytes,8,rep,name=opset_import,json=opsetImport,proto3" json:"opset_import,omitempty"`
	MetadataProps   []*StringStringEntryProto `protobuf:"bytes,14,rep,name=metadata_props,json=metadataProps,proto3" json:"metadata_props,omitempty"`
}

func (m *ModelProto) Reset()         { *m = ModelProto{} }
func (m *ModelProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*ModelProto) ProtoMessage()    {}

func (m *ModelProto) GetGraph() *GraphProto {
	if m != nil {
		return m.Graph
	}
	return nil
}

// OperatorSetIdProto identifies an operator set by domain and version
type OperatorSetIdProto struct {
	Domain  string `protobuf:"bytes,1,opt,name=domain,proto3" json:"domain,omitempty"`
	Version int64  `protobuf:"varint,2,opt,name=version,proto3" json:"version,omitempty"`
}

func (m *OperatorSetIdProto) Reset()         { *m = OperatorSetIdProto{} }
func (m *OperatorSetIdProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*OperatorSetIdProto) ProtoMessage()    {}

// StringStringEntryProto is a key/value metadata pair
type StringStringEntryProto struct {
	Key   string `protobuf:"bytes,1,opt,name=key,proto3" json:"key,omitempty"`
	Value string `protobuf:"bytes,2,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *StringStringEntryProto) Reset()         { *m = StringStringEntryProto{} }
func (m *StringStringEntryProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*StringStringEntryProto) ProtoMessage()    {}

// GraphProto holds the computation graph: nodes, initializers and the
// graph's input/output signatures
type GraphProto struct {
	Node        []*NodeProto      `protobuf:"bytes,1,rep,name=node,proto3" json:"node,omitempty"`
	Name        string            `protobuf:"bytes,2,opt,name=name,proto3" json:"name,omitempty"`
	Initializer []*TensorProto    `protobuf:"bytes,5,rep,name=initializer,proto3" json:"initializer,omitempty"`
	DocString   string            `protobuf:"bytes,10,opt,name=doc_string,json=docString,proto3" json:"doc_string,omitempty"`
	Input       []*ValueInfoProto `protobuf:"bytes,11,rep,name=input,proto3" json:"input,omitempty"`
	Output      []*ValueInfoProto `protobuf:"bytes,12,rep,name=output,proto3" json:"output,omitempty"`
	ValueInfo   []*ValueInfoProto `protobuf:"bytes,13,rep,name=value_info,json=valueInfo,proto3" json:"value_info,omitempty"`
}

func (m *GraphProto) Reset()         { *m = GraphProto{} }
func (m *GraphProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*GraphProto) ProtoMessage()    {}

// NodeProto is a single operator invocation in the graph
type NodeProto struct {
	Input     []string          `protobuf:"bytes,1,rep,name=input,proto3" json:"input,omitempty"`
	Output    []string          `protobuf:"bytes,2,rep,name=output,proto3" json:"output,omitempty"`
	Name      string            `protobuf:"bytes,3,opt,name=name,proto3" json:"name,omitempty"`
	OpType    string            `protobuf:"bytes,4,opt,name=op_type,json=opType,proto3" json:"op_type,omitempty"`
	Attribute []*AttributeProto `protobuf:"bytes,5,rep,name=attribute,proto3" json:"attribute,omitempty"`
	DocString string            `protobuf:"bytes,6,opt,name=doc_string,json=docString,proto3" json:"doc_string,omitempty"`
	Domain    string            `protobuf:"bytes,7,opt,name=domain,proto3" json:"domain,omitempty"`
}

func (m *NodeProto) Reset()         { *m = NodeProto{} }
func (m *NodeProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*NodeProto) ProtoMessage()    {}

// AttributeProto_AttributeType mirrors onnx.AttributeProto.AttributeType
type AttributeProto_AttributeType int32

const (
	AttributeProto_AttributeType_UNDEFINED AttributeProto_AttributeType = 0
	AttributeProto_AttributeType_FLOAT     AttributeProto_AttributeType = 1
	AttributeProto_AttributeType_INT       AttributeProto_AttributeType = 2
	AttributeProto_AttributeType_STRING    AttributeProto_AttributeType = 3
	AttributeProto_AttributeType_TENSOR    AttributeProto_AttributeType = 4
	AttributeProto_AttributeType_GRAPH     AttributeProto_AttributeType = 5
	AttributeProto_AttributeType_FLOATS    AttributeProto_AttributeType = 6
	AttributeProto_AttributeType_INTS      AttributeProto_AttributeType = 7
	AttributeProto_AttributeType_STRINGS   AttributeProto_AttributeType = 8
	AttributeProto_AttributeType_TENSORS   AttributeProto_AttributeType = 9
	AttributeProto_AttributeType_GRAPHS    AttributeProto_AttributeType = 10
)

// AttributeProto is a named attribute of a node. Exactly one of the value
// fields is used, selected by the operator's schema.
type AttributeProto struct {
	Name      string                       `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	F         float32                      `protobuf:"fixed32,2,opt,name=f,proto3" json:"f,omitempty"`
	I         int64                        `protobuf:"varint,3,opt,name=i,proto3" json:"i,omitempty"`
	S         []byte                       `protobuf:"bytes,4,opt,name=s,proto3" json:"s,omitempty"`
	T         *TensorProto                 `protobuf:"bytes,5,opt,name=t,proto3" json:"t,omitempty"`
	Floats    []float32                    `protobuf:"fixed32,7,rep,packed,name=floats,proto3" json:"floats,omitempty"`
	Ints      []int64                      `protobuf:"varint,8,rep,packed,name=ints,proto3" json:"ints,omitempty"`
	Strings   [][]byte                     `protobuf:"bytes,9,rep,name=strings,proto3" json:"strings,omitempty"`
	DocString string                       `protobuf:"bytes,13,opt,name=doc_string,json=docString,proto3" json:"doc_string,omitempty"`
	Type      AttributeProto_AttributeType `protobuf:"varint,20,opt,name=type,proto3,enum=onnx.AttributeProto.AttributeType" json:"type,omitempty"`
}

func (m *AttributeProto) Reset()         { *m = AttributeProto{} }
func (m *AttributeProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*AttributeProto) ProtoMessage()    {}

// TensorProto carries constant tensor data such as weight initializers
type TensorProto struct {
	Dims      []int64              `protobuf:"varint,1,rep,packed,name=dims,proto3" json:"dims,omitempty"`
	DataType  TensorProto_DataType `protobuf:"varint,2,opt,name=data_type,json=dataType,proto3,enum=onnx.TensorProto.DataType" json:"data_type,omitempty"`
	FloatData []float32            `protobuf:"fixed32,4,rep,packed,name=float_data,json=floatData,proto3" json:"float_data,omitempty"`
	Int32Data []int32              `protobuf:"varint,5,rep,packed,name=int32_data,json=int32Data,proto3" json:"int32_data,omitempty"`
	Int64Data []int64              `protobuf:"varint,7,rep,packed,name=int64_data,json=int64Data,proto3" json:"int64_data,omitempty"`
	Name      string               `protobuf:"bytes,8,opt,name=name,proto3" json:"name,omitempty"`
	RawData   []byte               `protobuf:"bytes,9,opt,name=raw_data,json=rawData,proto3" json:"raw_data,omitempty"`
	DocString string               `protobuf:"bytes,12,opt,name=doc_string,json=docString,proto3" json:"doc_string,omitempty"`
}

func (m *TensorProto) Reset()         { *m = TensorProto{} }
func (m *TensorProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*TensorProto) ProtoMessage()    {}

// ValueInfoProto names and types a graph input or output
type ValueInfoProto struct {
	Name      string     `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Type      *TypeProto `protobuf:"bytes,2,opt,name=type,proto3" json:"type,omitempty"`
	DocString string     `protobuf:"bytes,3,opt,name=doc_string,json=docString,proto3" json:"doc_string,omitempty"`
}

func (m *ValueInfoProto) Reset()         { *m = ValueInfoProto{} }
func (m *ValueInfoProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*ValueInfoProto) ProtoMessage()    {}

// TypeProto describes the type of a value; only tensor types are used here
type TypeProto struct {
	// Types that are assignable to Value:
	//	*TypeProto_TensorType
	Value      isTypeProto_Value `protobuf_oneof:"value"`
	Denotation string            `protobuf:"bytes,6,opt,name=denotation,proto3" json:"denotation,omitempty"`
}

func (m *TypeProto) Reset()         { *m = TypeProto{} }
func (m *TypeProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*TypeProto) ProtoMessage()    {}

type isTypeProto_Value interface {
	isTypeProto_Value()
}

type TypeProto_TensorType struct {
	TensorType *TypeProto_Tensor `protobuf:"bytes,1,opt,name=tensor_type,json=tensorType,proto3,oneof"`
}

func (*TypeProto_TensorType) isTypeProto_Value() {}

func (m *TypeProto) GetValue() isTypeProto_Value {
	if m != nil {
		return m.Value
	}
	return nil
}

func (m *TypeProto) GetTensorType() *TypeProto_Tensor {
	if x, ok := m.GetValue().(*TypeProto_TensorType); ok {
		return x.TensorType
	}
	return nil
}

// XXX_OneofWrappers is for the internal use of the proto package.
func (*TypeProto) XXX_OneofWrappers() []interface{} {
	return []interface{}{
		(*TypeProto_TensorType)(nil),
	}
}

// TypeProto_Tensor is the tensor type: element type plus shape
type TypeProto_Tensor struct {
	ElemType TensorProto_DataType `protobuf:"varint,1,opt,name=elem_type,json=elemType,proto3,enum=onnx.TensorProto.DataType" json:"elem_type,omitempty"`
	Shape    *TensorShapeProto    `protobuf:"bytes,2,opt,name=shape,proto3" json:"shape,omitempty"`
}

func (m *TypeProto_Tensor) Reset()         { *m = TypeProto_Tensor{} }
func (m *TypeProto_Tensor) String() string { return fmt.Sprintf("%+v", *m) }
func (*TypeProto_Tensor) ProtoMessage()    {}

// TensorShapeProto is a list of dimensions
type TensorShapeProto struct {
	Dim []*TensorShapeProto_Dimension `protobuf:"bytes,1,rep,name=dim,proto3" json:"dim,omitempty"`
}

func (m *TensorShapeProto) Reset()         { *m = TensorShapeProto{} }
func (m *TensorShapeProto) String() string { return fmt.Sprintf("%+v", *m) }
func (*TensorShapeProto) ProtoMessage()    {}

// TensorShapeProto_Dimension is either a concrete size or a symbolic name
type TensorShapeProto_Dimension struct {
	// Types that are assignable to Value:
	//	*TensorShapeProto_Dimension_DimValue
	//	*TensorShapeProto_Dimension_DimParam
	Value      isTensorShapeProto_Dimension_Value `protobuf_oneof:"value"`
	Denotation string                             `protobuf:"bytes,3,opt,name=denotation,proto3" json:"denotation,omitempty"`
}

func (m *TensorShapeProto_Dimension) Reset()         { *m = TensorShapeProto_Dimension{} }
func (m *TensorShapeProto_Dimension) String() string { return fmt.Sprintf("%+v", *m) }
func (*TensorShapeProto_Dimension) ProtoMessage()    {}

type isTensorShapeProto_Dimension_Value interface {
	isTensorShapeProto_Dimension_Value()
}

type TensorShapeProto_Dimension_DimValue struct {
	DimValue int64 `protobuf:"varint,1,opt,name=dim_value,json=dimValue,proto3,oneof"`
}

type TensorShapeProto_Dimension_DimParam struct {
	DimParam string `protobuf:"bytes,2,opt,name=dim_param,json=dimParam,proto3,oneof"`
}

func (*TensorShapeProto_Dimension_DimValue) isTensorShapeProto_Dimension_Value() {}
func (*TensorShapeProto_Dimension_DimParam) isTensorShapeProto_Dimension_Value() {}

func (m *TensorShapeProto_Dimension) GetValue() isTensorShapeProto_Dimension_Value {
	if m != nil {
		return m.Value
	}
	return nil
}

func (m *TensorShapeProto_Dimension) GetDimValue() int64 {
	if x, ok := m.GetValue().(*TensorShapeProto_Dimension_DimValue); ok {
		return x.DimValue
	}
	return 0
}

func (m *TensorShapeProto_Dimension) GetDimParam() string {
	if x, ok := m.GetValue().(*TensorShapeProto_Dimension_DimParam); ok {
		return x.DimParam
	}
	return ""
}

// XXX_OneofWrappers is for the internal use of the proto package.
func (*TensorShapeProto_Dimension) XXX_OneofWrappers() []interface{} {
	return []interface{}{
		(*TensorShapeProto_Dimension_DimValue)(nil),
		(*TensorShapeProto_Dimension_DimParam)(nil),
	}
}
