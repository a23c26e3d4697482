package mil

import "google.golang.org/protobuf/encoding/protowire"

// Core ML protobuf field numbers (Model.proto, FeatureTypes.proto, MIL.proto).
const (
	// Model.
	fieldModelSpecificationVersion protowire.Number = 1
	fieldModelDescription          protowire.Number = 2
	fieldModelMLProgram            protowire.Number = 502

	// ModelDescription.
	fieldDescriptionInput    protowire.Number = 1
	fieldDescriptionOutput   protowire.Number = 10
	fieldDescriptionMetadata protowire.Number = 100

	// Metadata.
	fieldMetadataShortDescription protowire.Number = 1
	fieldMetadataVersionString    protowire.Number = 2
	fieldMetadataAuthor           protowire.Number = 3
	fieldMetadataLicense          protowire.Number = 4
	fieldMetadataUserDefined      protowire.Number = 100

	// FeatureDescription, FeatureType, ArrayFeatureType.
	fieldFeatureName             protowire.Number = 1
	fieldFeatureShortDescription protowire.Number = 2
	fieldFeatureType             protowire.Number = 3
	fieldFeatureTypeMultiArray   protowire.Number = 5
	fieldArrayShape              protowire.Number = 1
	fieldArrayDataType           protowire.Number = 2

	// Program, Function, Block.
	fieldProgramVersion   protowire.Number = 1
	fieldProgramFunctions protowire.Number = 2
	fieldFunctionInputs   protowire.Number = 1
	fieldFunctionOpset    protowire.Number = 2
	fieldFunctionBlocks   protowire.Number = 3
	fieldBlockOutputs     protowire.Number = 2
	fieldBlockOperations  protowire.Number = 3

	// Operation, Argument, Binding.
	fieldOperationType       protowire.Number = 1
	fieldOperationInputs     protowire.Number = 2
	fieldOperationOutputs    protowire.Number = 3
	fieldOperationAttributes protowire.Number = 5
	fieldArgumentArguments   protowire.Number = 1
	fieldBindingName         protowire.Number = 1

	// NamedValueType, ValueType, TensorType, Dimension.
	fieldNamedValueTypeName     protowire.Number = 1
	fieldNamedValueTypeType     protowire.Number = 2
	fieldValueTypeTensor        protowire.Number = 1
	fieldTensorTypeDataType     protowire.Number = 1
	fieldTensorTypeRank         protowire.Number = 2
	fieldTensorTypeDimensions   protowire.Number = 3
	fieldDimensionConstant      protowire.Number = 1
	fieldConstantDimensionSize  protowire.Number = 1

	// Value, ImmediateValue, TensorValue, BlobFileValue.
	fieldValueType          protowire.Number = 2
	fieldValueImmediate     protowire.Number = 3
	fieldValueBlobFile      protowire.Number = 5
	fieldImmediateTensor    protowire.Number = 1
	fieldTensorValueFloats  protowire.Number = 1
	fieldTensorValueInts    protowire.Number = 2
	fieldTensorValueBools   protowire.Number = 3
	fieldTensorValueStrings protowire.Number = 4
	fieldRepeatedValues     protowire.Number = 1
	fieldBlobFileName       protowire.Number = 1
	fieldBlobOffset         protowire.Number = 2

	// Map entries.
	fieldMapKey   protowire.Number = 1
	fieldMapValue protowire.Number = 2
)

// arrayDataTypeFloat32 is ArrayFeatureType.ArrayDataType.FLOAT32.
const arrayDataTypeFloat32 = 65568
