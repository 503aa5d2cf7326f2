package config

// Template is the commented configuration written by `valkyrie config init`.
const Template = `# Valkyrie configuration
scanner:
  # target_path: .
  include_patterns: ["**/*"]
  exclude_patterns:
    - "**/.git/**"
    - "**/.vscode/**"
    - "**/node_modules/**"
    - "**/__pycache__/**"
  max_file_size: 10485760
  parallel_workers: 4
  severity_threshold: low
  diff_only: false
  fail_on_findings: true
  # file_timeout: 30s

rules:
  local_rules_dir: ./rules
  include_rules: []
  exclude_rules: []
  categories:
    secrets: true
    dependencies: true
    iam_config: true
    code_quality: true
    infrastructure: true

plugins:
  - name: secrets-detector
    enabled: true
    # config:
    #   strict_validation: true   # drop matches that fail structural checks
  - name: iam-scanner
    enabled: true
  - name: vulnera
    enabled: true
    config:
      skip_dev: false
      # database: ./advisories.yaml

output:
  format: sarif
  # file: valkyrie.sarif
  audit: false

logging:
  level: warning
  format: plain
`
