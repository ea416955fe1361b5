// Package docs 聚类分析服务的 Swagger 文档，随控制器注解手工维护
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "系统"
                ],
                "summary": "健康检查",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.HealthResponse"
                        }
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "系统"
                ],
                "summary": "就绪检查",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.HealthResponse"
                        }
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {
                            "$ref": "#/definitions/controllers.HealthResponse"
                        }
                    }
                }
            }
        },
        "/dashboard": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "仪表盘"
                ],
                "summary": "获取仪表盘汇总",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "500": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/datasets": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "数据集"
                ],
                "summary": "获取数据集列表",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "500": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            },
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "数据集"
                ],
                "summary": "创建数据集",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "数据集定义",
                        "name": "dataset",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/controllers.CreateDatasetRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/datasets/upload": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "数据集"
                ],
                "summary": "导入CSV数据集",
                "consumes": [
                    "multipart/form-data"
                ],
                "parameters": [
                    {
                        "type": "file",
                        "description": "CSV文件",
                        "name": "file",
                        "in": "formData",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "数据集名称",
                        "name": "name",
                        "in": "formData",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "显示名称",
                        "name": "label",
                        "in": "formData"
                    },
                    {
                        "type": "string",
                        "description": "描述",
                        "name": "description",
                        "in": "formData"
                    },
                    {
                        "type": "string",
                        "description": "文件编码 utf-8 或 gbk",
                        "name": "encoding",
                        "in": "formData"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/datasets/{id}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "数据集"
                ],
                "summary": "获取数据集详情",
                "parameters": [
                    {
                        "type": "string",
                        "description": "数据集ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            },
            "delete": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "数据集"
                ],
                "summary": "删除数据集",
                "parameters": [
                    {
                        "type": "string",
                        "description": "数据集ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/meta/algorithms": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "元数据"
                ],
                "summary": "获取聚类算法列表",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/meta/algorithms/{name}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "元数据"
                ],
                "summary": "获取算法参数模式",
                "parameters": [
                    {
                        "type": "string",
                        "description": "算法名称",
                        "name": "name",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/meta/estimators": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "元数据"
                ],
                "summary": "获取簇数估计器列表",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/meta/linkage-methods": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "元数据"
                ],
                "summary": "获取层次聚类连接方式",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/runs": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "聚类运行"
                ],
                "summary": "获取最近运行列表",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "返回条数",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "500": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            },
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "聚类运行"
                ],
                "summary": "提交聚类运行",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "运行请求",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/analysis.RunRequest"
                        }
                    },
                    {
                        "type": "boolean",
                        "description": "是否等待运行结束",
                        "name": "wait",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "400": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "503": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "聚类运行"
                ],
                "summary": "获取运行状态",
                "parameters": [
                    {
                        "type": "string",
                        "description": "运行ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/results": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "聚类结果"
                ],
                "summary": "获取结果列表",
                "parameters": [
                    {
                        "type": "string",
                        "description": "数据集ID",
                        "name": "dataset_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "算法名称",
                        "name": "algorithm",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "返回条数",
                        "name": "limit",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "500": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        },
        "/results/{id}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "聚类结果"
                ],
                "summary": "获取结果详情",
                "parameters": [
                    {
                        "type": "string",
                        "description": "结果ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "404": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            },
            "delete": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "聚类结果"
                ],
                "summary": "删除结果",
                "parameters": [
                    {
                        "type": "string",
                        "description": "结果ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    },
                    "500": {
                        "description": "Error",
                        "schema": {
                            "$ref": "#/definitions/controllers.APIResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "controllers.APIResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "integer",
                    "example": 0
                },
                "msg": {
                    "type": "string",
                    "example": "操作成功"
                },
                "data": {}
            }
        },
        "controllers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string",
                    "example": "ok"
                },
                "timestamp": {
                    "type": "string"
                },
                "version": {
                    "type": "string",
                    "example": "1.0.0"
                },
                "service": {
                    "type": "string",
                    "example": "clusterhub-service"
                },
                "error": {
                    "type": "string"
                }
            }
        },
        "catalog.AttributeInput": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string",
                    "example": "sepal_length"
                },
                "type": {
                    "type": "string",
                    "example": "numeric"
                }
            }
        },
        "controllers.CreateDatasetRequest": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string",
                    "example": "iris"
                },
                "label": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "attributes": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/catalog.AttributeInput"
                    }
                },
                "records": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "additionalProperties": true
                    }
                }
            }
        },
        "analysis.FeatureOptions": {
            "type": "object",
            "properties": {
                "encoding": {
                    "type": "string",
                    "example": "exclude"
                },
                "scaling": {
                    "type": "string",
                    "example": "none"
                },
                "attributes": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "analysis.RunRequest": {
            "type": "object",
            "properties": {
                "dataset_id": {
                    "type": "string"
                },
                "algorithm": {
                    "type": "string",
                    "example": "kmeans"
                },
                "parameters": {
                    "type": "object",
                    "additionalProperties": true
                },
                "indexes": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "features": {
                    "$ref": "#/definitions/analysis.FeatureOptions"
                },
                "request_key": {
                    "type": "string"
                },
                "timeout_seconds": {
                    "type": "integer"
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "聚类分析服务 API",
	Description:      "数据集聚类任务编排与有效性评估服务，提供数据集管理、聚类运行、结果查询功能",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
