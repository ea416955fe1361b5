/*
 * @module service/meta/analysis
 * @description 聚类分析相关常量定义：运行状态、错误码、属性类型、特征编码策略
 * @architecture 常量层 - 元数据定义
 * @documentReference DESIGN.md
 * @stateFlow queued -> running -> succeeded/failed
 * @rules 统一管理分析子系统的枚举值，避免在业务代码中散落字面量
 * @dependencies 无外部依赖
 * @refs service/analysis, service/models
 */

package meta

// 运行状态
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// IsTerminalRunStatus 判断是否为终态
func IsTerminalRunStatus(status string) bool {
	return status == RunStatusSucceeded || status == RunStatusFailed
}

// 运行失败错误码
const (
	ErrorCodeNotFound          = "NOT_FOUND"
	ErrorCodeInvalidParameter  = "INVALID_PARAMETER"
	ErrorCodeEmptyDataset      = "EMPTY_DATASET"
	ErrorCodeFeatureExtraction = "FEATURE_EXTRACTION"
	ErrorCodeAlgorithmFailure  = "ALGORITHM_FAILURE"
	ErrorCodeTimeout           = "TIMEOUT"
	ErrorCodeInternal          = "INTERNAL"
)

// 属性声明类型
const (
	AttributeTypeNumeric     = "numeric"
	AttributeTypeInteger     = "integer"
	AttributeTypeBoolean     = "boolean"
	AttributeTypeCategorical = "categorical"
	AttributeTypeText        = "text"
)

// 数据集属性分类
const (
	DatasetAttributeTypeNumeric     = "numeric"
	DatasetAttributeTypeCategorical = "categorical"
	DatasetAttributeTypeMixed       = "mixed"
)

// IsValidAttributeType 验证属性类型是否有效
func IsValidAttributeType(attrType string) bool {
	validTypes := map[string]bool{
		AttributeTypeNumeric:     true,
		AttributeTypeInteger:     true,
		AttributeTypeBoolean:     true,
		AttributeTypeCategorical: true,
		AttributeTypeText:        true,
	}
	return validTypes[attrType]
}

// IsNumericAttributeType 判断属性是否可直接作为数值特征
func IsNumericAttributeType(attrType string) bool {
	return attrType == AttributeTypeNumeric || attrType == AttributeTypeInteger || attrType == AttributeTypeBoolean
}

// 非数值属性编码策略
const (
	EncodingExclude = "exclude"
	EncodingOrdinal = "ordinal"
	EncodingOneHot  = "one_hot"
)

// 特征缩放方式
const (
	ScalingNone     = "none"
	ScalingStandard = "standard"
	ScalingMinMax   = "minmax"
)

// IsValidEncoding 验证编码策略
func IsValidEncoding(encoding string) bool {
	return encoding == "" || encoding == EncodingExclude || encoding == EncodingOrdinal || encoding == EncodingOneHot
}

// IsValidScaling 验证缩放方式
func IsValidScaling(scaling string) bool {
	return scaling == "" || scaling == ScalingNone || scaling == ScalingStandard || scaling == ScalingMinMax
}

// 算法类别
const (
	AlgorithmKindClustering = "clustering"
	AlgorithmKindEstimator  = "estimator"
)

// NoiseLabel 噪声/离群点标签，与所有真实簇编号区分
const NoiseLabel = -1

// 有效性指标名称
const (
	IndexSilhouette       = "silhouette"
	IndexWCSS             = "wcss"
	IndexCalinskiHarabasz = "calinski_harabasz"
	IndexDaviesBouldin    = "davies_bouldin"
	IndexSuggestedK       = "suggested_k"
)

// DefaultValidityIndexes 默认计算的有效性指标
var DefaultValidityIndexes = []string{
	IndexSilhouette,
	IndexWCSS,
	IndexCalinskiHarabasz,
	IndexDaviesBouldin,
}

// 层次聚类连接方式
const (
	LinkageWard     = "ward"
	LinkageSingle   = "single"
	LinkageComplete = "complete"
	LinkageAverage  = "average"
)

// LinkageMethod 连接方式展示项
type LinkageMethod struct {
	Label  string `json:"label"`
	Method string `json:"method"`
}

// LinkageMethods 层次聚类支持的连接方式
var LinkageMethods = []LinkageMethod{
	{Label: "Ward", Method: LinkageWard},
	{Label: "Single", Method: LinkageSingle},
	{Label: "Complete", Method: LinkageComplete},
	{Label: "Average", Method: LinkageAverage},
}

// 运行生命周期事件类型
const (
	EventRunQueued    = "run.queued"
	EventRunStarted   = "run.started"
	EventRunSucceeded = "run.succeeded"
	EventRunFailed    = "run.failed"
)

// DashboardRecentRunLimit 仪表盘展示的最近执行记录数
const DashboardRecentRunLimit = 20

// DatasetPreviewRecordLimit 数据集详情预览的记录数
const DatasetPreviewRecordLimit = 40
