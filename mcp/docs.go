package mcp

// docsOverview contains the overview documentation for the co-pilot.
const docsOverview = `# n8n Co-pilot Overview

## What is the co-pilot?

The co-pilot is a control plane that sits between an AI agent and an n8n
workflow engine. It makes workflow authoring safe and informed:

- **Validation before deployment.** Every workflow document passes a layered
  admission pipeline before anything reaches the engine.
- **A synced node catalog.** The co-pilot keeps a local index of the engine's
  installed node types, refreshed in the background, so questions like "what
  is the exact type identifier for a webhook node?" are answered locally.
- **Adaptive routing.** Requests carrying both an automation goal and a
  workflow document are routed by recorded success rates (agent path vs
  direct handler path).
- **Shared memory.** A TTL'd key/value store carries validation results and
  execution metrics between components; query it with ` + "`memory_query`" + `.

## The validation pipeline

Layers run in order; the first layer with errors stops the run. Warnings
accumulate and never fail a document on their own (strict mode aside).

1. **Node restrictions** - community/scraper node policy.
2. **Schema** - structural conversion to canonical form.
3. **Node existence** - every type resolves in the catalog.
4. **Connections** - every edge endpoint names a real node; orphans warn.
5. **Credentials** - required credential slots are filled.
6. **Semantic review** (optional) - advisor findings, always warnings.
7. **Dry-run** (optional) - disposable create-then-delete on the engine.

## The deploy flow

` + "`deploy_workflow`" + ` = route decision + validation + create-or-update.
An inadmissible document never reaches the engine; the refusal carries the
full verdict so the issues can be fixed and the document resubmitted.

## Typical agent session

1. ` + "`search_nodes`" + ` / ` + "`get_node_info`" + ` to find exact node types.
2. Author the workflow document (see the workflow-format resource).
3. ` + "`validate_workflow`" + ` and iterate until valid.
4. ` + "`deploy_workflow`" + `, then ` + "`run_workflow`" + ` to test it.
5. ` + "`get_execution`" + ` to inspect the outcome.
`

// docsWorkflowFormat documents the document shape the validation tools accept.
const docsWorkflowFormat = `# Workflow Document Format

A workflow is a JSON object with a name, a node list, and a connection map.

` + "```json" + `
{
  "name": "Order notifier",
  "nodes": [
    {
      "name": "Webhook",
      "type": "n8n-nodes-base.webhook",
      "typeVersion": 1,
      "position": [0, 0],
      "parameters": { "path": "orders", "httpMethod": "POST" }
    },
    {
      "name": "Slack",
      "type": "n8n-nodes-base.slack",
      "typeVersion": 1,
      "position": [220, 0],
      "parameters": { "channel": "#orders" },
      "credentials": { "slackApi": { "id": "3", "name": "team slack" } }
    }
  ],
  "connections": {
    "Webhook": {
      "main": [[ { "node": "Slack", "type": "main", "index": 0 } ]]
    }
  },
  "settings": { "executionOrder": "v1" }
}
` + "```" + `

## Rules the pipeline enforces

- ` + "`name`" + ` is required, as is at least one node.
- Node names must be unique within the document; connections reference nodes
  **by name**, not by id.
- ` + "`type`" + ` must be a full dotted identifier. Use ` + "`search_nodes`" + `
  to find it; guessing produces NODE_NOT_FOUND errors.
- ` + "`position`" + ` is ` + "`[x, y]`" + ` (an ` + "`{x, y}`" + ` object is
  also accepted).
- ` + "`connections`" + ` maps a source node name to channels; the ` + "`main`" + `
  channel is a list of output slots, each a list of
  ` + "`{node, type, index}`" + ` endpoints. Most nodes have one output slot.
- A workflow with no trigger-like node can only be started manually; the
  schema layer flags this with a warning.
- Required credential slots (declared by the node's type) must carry a
  reference. Credentials are created in the engine's UI; the co-pilot never
  stores secrets.

## Channels

Most edges use ` + "`main`" + `. AI nodes wire through dedicated channels:
` + "`ai_tool`" + `, ` + "`ai_agent`" + `, ` + "`ai_memory`" + `,
` + "`ai_outputParser`" + `, ` + "`ai_languageModel`" + `,
` + "`ai_embedding`" + `, ` + "`ai_document`" + `, ` + "`ai_textSplitter`" + `,
` + "`ai_vectorStore`" + `, ` + "`ai_retriever`" + `.
`

// docsErrorKinds documents the failure envelope and the closed kind set.
const docsErrorKinds = `# Error Kind Reference

Failed tool calls return an error result whose text is a JSON envelope:

` + "```json" + `
{
  "ok": false,
  "error": {
    "kind": "NotFound",
    "message": "workflow not found",
    "retryable": false,
    "recoverySteps": ["check the resource ID; it may have been deleted on the engine"]
  }
}
` + "```" + `

Refused deploys additionally carry ` + "`validation`" + ` beside
` + "`error`" + `: the full verdict with per-layer errors and warnings.

## Kinds

| Kind | Meaning | Retry? |
|---|---|---|
| ` + "`PolicyViolation`" + ` | validation refused admission; fix the reported issues | no |
| ` + "`ValidationBadRequest`" + ` | the engine (or a store query) rejected the request shape | no |
| ` + "`NotFound`" + ` | no such workflow/execution/node type | no |
| ` + "`Unauthenticated`" + ` | API key missing, wrong, or revoked | no |
| ` + "`RateLimited`" + ` | engine throttled the call; honor Retry-After | yes |
| ` + "`ServerError`" + ` | engine-side 5xx | yes |
| ` + "`Network`" + ` | engine unreachable | yes |
| ` + "`SessionAuth`" + ` | optional introspection login failed | no |
| ` + "`DeadlineExceeded`" + ` | the call ran out of context | yes |
| ` + "`CatalogUnavailable`" + ` | catalog has no snapshot yet; run resync_catalog | yes |
| ` + "`Unknown`" + ` | unclassified failure | no |

Validation issue codes (inside the verdict) are a separate closed set:
NODE_NOT_ALLOWED, SCHEMA_ERROR, NODE_NOT_FOUND, CONNECTION_SOURCE_MISSING,
CONNECTION_TARGET_MISSING, CREDENTIAL_MISSING, N8N_REJECTED, DRY_RUN_ERROR,
VALIDATION_EXCEPTION, and warning codes SCHEMA_WARNING, CATALOG_NOT_READY,
ORPHAN_NODE, CREDENTIAL_TYPE_UNKNOWN, SEMANTIC_ISSUE, SEMANTIC_ERROR,
CLEANUP_FAILED.
`
