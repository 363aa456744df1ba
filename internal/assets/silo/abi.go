package silo

const beanstalkABI = `[
  {"type":"event","name":"L1DepositsMigrated","anonymous":false,"inputs":[
    {"indexed":true,"name":"owner","type":"address"},
    {"indexed":true,"name":"receiver","type":"address"},
    {"indexed":false,"name":"depositIds","type":"uint256[]"},
    {"indexed":false,"name":"amounts","type":"uint256[]"},
    {"indexed":false,"name":"bdvs","type":"uint256[]"}]},
  {"type":"event","name":"L1InternalBalancesMigrated","anonymous":false,"inputs":[
    {"indexed":true,"name":"owner","type":"address"},
    {"indexed":true,"name":"receiver","type":"address"},
    {"indexed":false,"name":"tokens","type":"address[]"},
    {"indexed":false,"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"getInternalBalance","stateMutability":"view","inputs":[
    {"name":"account","type":"address"},
    {"name":"token","type":"address"}],"outputs":[{"name":"balance","type":"uint256"}]}
]`

const erc20ABI = `[
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"indexed":true,"name":"from","type":"address"},
    {"indexed":true,"name":"to","type":"address"},
    {"indexed":false,"name":"value","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`
