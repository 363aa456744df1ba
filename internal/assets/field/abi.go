package field

const beanstalkABI = `[
  {"type":"event","name":"L1PlotsMigrated","anonymous":false,"inputs":[
    {"indexed":true,"name":"owner","type":"address"},
    {"indexed":true,"name":"receiver","type":"address"},
    {"indexed":false,"name":"index","type":"uint256[]"},
    {"indexed":false,"name":"pods","type":"uint256[]"}]},
  {"type":"event","name":"MigratedPlot","anonymous":false,"inputs":[
    {"indexed":true,"name":"account","type":"address"},
    {"indexed":false,"name":"plotIndex","type":"uint256"},
    {"indexed":false,"name":"pods","type":"uint256"}]},
  {"type":"event","name":"PlotTransfer","anonymous":false,"inputs":[
    {"indexed":true,"name":"from","type":"address"},
    {"indexed":true,"name":"to","type":"address"},
    {"indexed":false,"name":"fieldId","type":"uint256"},
    {"indexed":true,"name":"index","type":"uint256"},
    {"indexed":false,"name":"amount","type":"uint256"}]},
  {"type":"event","name":"Sow","anonymous":false,"inputs":[
    {"indexed":true,"name":"account","type":"address"},
    {"indexed":false,"name":"fieldId","type":"uint256"},
    {"indexed":false,"name":"index","type":"uint256"},
    {"indexed":false,"name":"beans","type":"uint256"},
    {"indexed":false,"name":"pods","type":"uint256"}]},
  {"type":"function","name":"getPlotIndexesFromAccount","stateMutability":"view","inputs":[
    {"name":"account","type":"address"},
    {"name":"fieldId","type":"uint256"}],"outputs":[{"name":"plotIndexes","type":"uint256[]"}]},
  {"type":"function","name":"plot","stateMutability":"view","inputs":[
    {"name":"account","type":"address"},
    {"name":"fieldId","type":"uint256"},
    {"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalUnharvestable","stateMutability":"view","inputs":[
    {"name":"fieldId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`
