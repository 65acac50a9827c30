package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Marketplace contract method and event names.
const (
	MethodGetNextAuditRequest       = "getNextAuditRequest"
	MethodSubmitReport              = "submitReport"
	MethodSubmitPoliceReport        = "submitPoliceReport"
	MethodClaimRewards              = "claimRewards"
	MethodSetAuditNodePrice         = "setAuditNodePrice"
	MethodHasAvailableRewards       = "hasAvailableRewards"
	MethodAssignedRequestCount      = "assignedRequestCount"
	MethodAnyRequestAvailable       = "anyRequestAvailable"
	MethodMyMostRecentAssignedAudit = "myMostRecentAssignedAudit"
	MethodIsPoliceNode              = "isPoliceNode"
	MethodGetNextPoliceAssignment   = "getNextPoliceAssignment"
	MethodGetReport                 = "getReport"
	MethodIsAuditFinished           = "isAuditFinished"
	MethodGetAuditTimeoutInBlocks   = "getAuditTimeoutInBlocks"
	MethodGetMaxAssignedRequests    = "getMaxAssignedRequests"
	MethodGetMinAuditPrice          = "getMinAuditPrice"
	MethodHasEnoughStake            = "hasEnoughStake"
	MethodIsAuditor                 = "isAuditor"

	EventLogAuditAssigned = "LogAuditAssigned"
)

// AuditMarketplaceABI is the subset of the audit marketplace ABI the node uses.
const AuditMarketplaceABI = `[
  {"type":"function","name":"getNextAuditRequest","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"submitReport","stateMutability":"nonpayable","inputs":[
    {"name":"requestId","type":"uint256"},{"name":"auditResult","type":"uint8"},{"name":"report","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"submitPoliceReport","stateMutability":"nonpayable","inputs":[
    {"name":"requestId","type":"uint256"},{"name":"report","type":"bytes"},{"name":"isVerified","type":"bool"}],
    "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"claimRewards","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"setAuditNodePrice","stateMutability":"nonpayable","inputs":[
    {"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"hasAvailableRewards","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"assignedRequestCount","stateMutability":"view","inputs":[
    {"name":"auditor","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"anyRequestAvailable","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"myMostRecentAssignedAudit","stateMutability":"view","inputs":[],"outputs":[
    {"name":"requestId","type":"uint256"},{"name":"requestor","type":"address"},{"name":"uri","type":"string"},
    {"name":"price","type":"uint256"},{"name":"blockNumber","type":"uint256"}]},
  {"type":"function","name":"isPoliceNode","stateMutability":"view","inputs":[
    {"name":"node","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getNextPoliceAssignment","stateMutability":"view","inputs":[],"outputs":[
    {"name":"exists","type":"bool"},{"name":"requestId","type":"uint256"},{"name":"price","type":"uint256"},
    {"name":"uri","type":"string"},{"name":"blockNumber","type":"uint256"}]},
  {"type":"function","name":"getReport","stateMutability":"view","inputs":[
    {"name":"requestId","type":"uint256"}],"outputs":[{"name":"","type":"bytes"}]},
  {"type":"function","name":"isAuditFinished","stateMutability":"view","inputs":[
    {"name":"requestId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getAuditTimeoutInBlocks","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getMaxAssignedRequests","stateMutability":"view","inputs":[],
    "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getMinAuditPrice","stateMutability":"view","inputs":[
    {"name":"auditor","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"hasEnoughStake","stateMutability":"view","inputs":[
    {"name":"auditor","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"isAuditor","stateMutability":"view","inputs":[
    {"name":"node","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"LogAuditAssigned","anonymous":false,"inputs":[
    {"name":"requestId","type":"uint256","indexed":false},{"name":"auditor","type":"address","indexed":true},
    {"name":"requestor","type":"address","indexed":true},{"name":"uri","type":"string","indexed":false},
    {"name":"price","type":"uint256","indexed":false},{"name":"requestBlockNumber","type":"uint256","indexed":false}]}
]`

var (
	parsedABI     abi.ABI
	parsedABIErr  error
	parsedABIOnce sync.Once
)

// MarketplaceABI returns the parsed marketplace ABI.
func MarketplaceABI() (abi.ABI, error) {
	parsedABIOnce.Do(func() {
		parsedABI, parsedABIErr = abi.JSON(strings.NewReader(AuditMarketplaceABI))
	})
	return parsedABI, parsedABIErr
}
