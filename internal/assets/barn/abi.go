package barn

const beanstalkABI = `[
  {"type":"event","name":"L1FertilizerMigrated","anonymous":false,"inputs":[
    {"indexed":true,"name":"owner","type":"address"},
    {"indexed":true,"name":"receiver","type":"address"},
    {"indexed":false,"name":"fertIds","type":"uint256[]"},
    {"indexed":false,"name":"amounts","type":"uint128[]"},
    {"indexed":false,"name":"lastBpf","type":"uint128"}]},
  {"type":"event","name":"FertilizerMigrated","anonymous":false,"inputs":[
    {"indexed":false,"name":"account","type":"address"},
    {"indexed":false,"name":"fid","type":"uint128"},
    {"indexed":false,"name":"amount","type":"uint128"},
    {"indexed":false,"name":"lastBpf","type":"uint128"}]}
]`

const fertilizerABI = `[
  {"type":"event","name":"TransferSingle","anonymous":false,"inputs":[
    {"indexed":true,"name":"operator","type":"address"},
    {"indexed":true,"name":"from","type":"address"},
    {"indexed":true,"name":"to","type":"address"},
    {"indexed":false,"name":"id","type":"uint256"},
    {"indexed":false,"name":"value","type":"uint256"}]},
  {"type":"event","name":"TransferBatch","anonymous":false,"inputs":[
    {"indexed":true,"name":"operator","type":"address"},
    {"indexed":true,"name":"from","type":"address"},
    {"indexed":true,"name":"to","type":"address"},
    {"indexed":false,"name":"ids","type":"uint256[]"},
    {"indexed":false,"name":"values","type":"uint256[]"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"account","type":"address"},
    {"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`
